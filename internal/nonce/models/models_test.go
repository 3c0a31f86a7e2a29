package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Known EIP-55 test vector.
const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestChecksumAddress(t *testing.T) {
	assert.Equal(t, checksummed, ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
}

func TestNormalizeAddress(t *testing.T) {
	t.Run("lowercase accepted", func(t *testing.T) {
		got, err := NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
		require.NoError(t, err)
		assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", got)
	})

	t.Run("valid checksum accepted and lowered", func(t *testing.T) {
		got, err := NormalizeAddress(checksummed)
		require.NoError(t, err)
		assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", got)
	})

	t.Run("broken checksum rejected", func(t *testing.T) {
		// flip the case of one letter
		_, err := NormalizeAddress("0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
		assert.Error(t, err)
	})

	t.Run("malformed input rejected", func(t *testing.T) {
		for _, in := range []string{"", "0x123", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed"} {
			_, err := NormalizeAddress(in)
			assert.Error(t, err, in)
		}
	})
}
