package system

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

var (
	RentSysVar ed25519.PublicKey
)

func init() {
	RentSysVar, _ = base58.Decode("SysvarRent111111111111111111111111111111111")
}
