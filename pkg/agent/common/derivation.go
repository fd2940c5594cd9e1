package common

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/easycoin-labs/agent-server/pkg/cache"
	"github.com/easycoin-labs/agent-server/pkg/solana"
)

// Seed layout shared with the on-chain program. The prefix namespaces every
// derived address; the second seed selects the record kind.
var (
	seedPrefix = []byte("easycoin")

	seedOperatorRegistry = []byte("operator")
	seedFeeRegistry      = []byte("fee")
	seedPauseRegistry    = []byte("pause")
	seedOwnerAccount     = []byte("owner")
	seedSubAccount       = []byte("user")
)

// GetAuthorizationRegistryAddress derives the singleton authorization
// registry address under the given program namespace.
func GetAuthorizationRegistryAddress(program *Account) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program.PublicKey().ToBytes(),
		seedPrefix,
		seedOperatorRegistry,
	)
}

// GetFeeRegistryAddress derives the singleton fee registry address under the
// given program namespace.
func GetFeeRegistryAddress(program *Account) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program.PublicKey().ToBytes(),
		seedPrefix,
		seedFeeRegistry,
	)
}

// GetPauseRegistryAddress derives the singleton pause registry address under
// the given program namespace.
func GetPauseRegistryAddress(program *Account) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program.PublicKey().ToBytes(),
		seedPrefix,
		seedPauseRegistry,
	)
}

// Derivation is deterministic, so hot paths resolve repeat lookups from an
// in-memory cache instead of redoing the search.
var (
	ownerAccountAddressCache = cache.NewCache(100_000)
	subAccountAddressCache   = cache.NewCache(100_000)
)

type derivedAddress struct {
	address ed25519.PublicKey
	bump    uint8
}

// GetOwnerAccountAddress derives the owner account address for an end user
// owner identity.
func GetOwnerAccountAddress(program, owner *Account) (ed25519.PublicKey, uint8, error) {
	cacheKey := fmt.Sprintf("%s:%s", program.PublicKey().ToBase58(), owner.PublicKey().ToBase58())
	if cached, ok := ownerAccountAddressCache.Retrieve(cacheKey); ok {
		entry := cached.(derivedAddress)
		return entry.address, entry.bump, nil
	}

	address, bump, err := solana.FindProgramAddressAndBump(
		program.PublicKey().ToBytes(),
		seedPrefix,
		seedOwnerAccount,
		owner.PublicKey().ToBytes(),
	)
	if err == nil {
		ownerAccountAddressCache.Insert(cacheKey, derivedAddress{address, bump}, 1)
	}
	return address, bump, err
}

// GetSubAccountAddress derives the sub-account address for an owner account
// and nonce pair.
func GetSubAccountAddress(program *Account, ownerAccount ed25519.PublicKey, nonce uint32) (ed25519.PublicKey, uint8, error) {
	cacheKey := fmt.Sprintf("%s:%x:%d", program.PublicKey().ToBase58(), ownerAccount, nonce)
	if cached, ok := subAccountAddressCache.Retrieve(cacheKey); ok {
		entry := cached.(derivedAddress)
		return entry.address, entry.bump, nil
	}

	var nonceBytes [4]byte
	binary.LittleEndian.PutUint32(nonceBytes[:], nonce)

	address, bump, err := solana.FindProgramAddressAndBump(
		program.PublicKey().ToBytes(),
		seedPrefix,
		seedSubAccount,
		ownerAccount,
		nonceBytes[:],
	)
	if err == nil {
		subAccountAddressCache.Insert(cacheKey, derivedAddress{address, bump}, 1)
	}
	return address, bump, err
}

// DerivedAuthority is the signing capability over a sub-account. It is
// reproducibly computable from (program namespace, owner account, nonce),
// is never backed by a private key, and is only honored when injected into
// an outbound invocation by the core logic itself.
type DerivedAuthority struct {
	address ed25519.PublicKey
	bump    uint8
}

// DeriveOwnerAccountAuthority mints the signing capability for an owner
// account.
func DeriveOwnerAccountAuthority(program, owner *Account) (*DerivedAuthority, error) {
	address, bump, err := GetOwnerAccountAddress(program, owner)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving owner account address")
	}

	return &DerivedAuthority{
		address: address,
		bump:    bump,
	}, nil
}

// DeriveSubAccountAuthority mints the signing capability for a sub-account.
func DeriveSubAccountAuthority(program *Account, ownerAccount ed25519.PublicKey, nonce uint32) (*DerivedAuthority, error) {
	address, bump, err := GetSubAccountAddress(program, ownerAccount, nonce)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving sub-account address")
	}

	return &DerivedAuthority{
		address: address,
		bump:    bump,
	}, nil
}

func (a *DerivedAuthority) Address() ed25519.PublicKey {
	return a.address
}

func (a *DerivedAuthority) Bump() uint8 {
	return a.bump
}
