package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// NativeMint is the mint of the wrapped SOL token.
//
// Current key: So11111111111111111111111111111111111111112
var NativeMint ed25519.PublicKey

func init() {
	NativeMint, _ = base58.Decode("So11111111111111111111111111111111111111112")
}

// IsNativeMint returns whether the provided mint is the wrapped SOL mint.
func IsNativeMint(mint ed25519.PublicKey) bool {
	return bytes.Equal(mint, NativeMint)
}
