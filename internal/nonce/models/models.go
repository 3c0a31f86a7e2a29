// Package models defines the per-address transaction sequence counter used to
// order outgoing ledger transactions.
package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Record is one counter row. For a given address the counter only increases,
// and concurrent increments never hand out the same value twice.
type Record struct {
	Address   string    `json:"address"`
	Nonce     int64     `json:"nonce"`
	TenantID  string    `json:"tenant_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeAddress canonicalizes a signing address to lowercase hex. Mixed-case
// input is treated as an EIP-55 checksummed address and its checksum is
// verified; all-lowercase and all-uppercase input is accepted as unchecked.
func NormalizeAddress(address string) (string, error) {
	a := strings.TrimSpace(address)
	if strings.HasPrefix(a, "0X") {
		a = "0x" + a[2:]
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 42 {
		return "", fmt.Errorf("address %q: want 0x-prefixed 20-byte hex", address)
	}
	hexPart := a[2:]
	hasLower, hasUpper := false, false
	for _, c := range hexPart {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
			hasLower = true
		case c >= 'A' && c <= 'F':
			hasUpper = true
		default:
			return "", fmt.Errorf("address %q: invalid hex character %q", address, c)
		}
	}
	if hasLower && hasUpper && ChecksumAddress(a) != a {
		return "", fmt.Errorf("address %q: EIP-55 checksum mismatch", address)
	}
	return "0x" + strings.ToLower(hexPart), nil
}

// ChecksumAddress renders an address in EIP-55 mixed-case form: each hex digit
// is uppercased when the corresponding nibble of keccak256(lowercase hex) is
// >= 8.
func ChecksumAddress(address string) string {
	hexPart := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(address), "0x"))

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(hexPart))
	digest := hash.Sum(nil)

	out := make([]byte, len(hexPart))
	for i := 0; i < len(hexPart); i++ {
		c := hexPart[i]
		if c >= 'a' && c <= 'f' {
			nibble := digest[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}
