package solana

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// PublicKeyFromBase58 decodes a base58-encoded ed25519 public key.
func PublicKeyFromBase58(value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base58 value")
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid public key size: %d", len(decoded))
	}
	return decoded, nil
}

// MustPublicKeyFromBase58 decodes a base58-encoded ed25519 public key,
// panicking on failure. Intended for static program addresses.
func MustPublicKeyFromBase58(value string) ed25519.PublicKey {
	key, err := PublicKeyFromBase58(value)
	if err != nil {
		panic(err)
	}
	return key
}

// Base58 encodes a public key to its base58 string form.
func Base58(key ed25519.PublicKey) string {
	return base58.Encode(key)
}
