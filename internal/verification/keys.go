package verification

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// StaticKeys resolves verification keys from an in-memory map keyed by JOSE
// kid. Deployments with a small fixed issuer set load it at startup.
type StaticKeys map[string]crypto.PublicKey

func (k StaticKeys) ResolveKey(_ context.Context, keyID string) (crypto.PublicKey, error) {
	key, ok := k[keyID]
	if !ok {
		return nil, fmt.Errorf("no verification key registered for kid %q", keyID)
	}
	return key, nil
}

// ParseEd25519PublicKey decodes a base64 raw ed25519 public key as carried in
// configuration.
func ParseEd25519PublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

var _ KeyResolver = (StaticKeys)(nil)
