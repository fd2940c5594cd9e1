package ledger

import (
	"errors"
	"math"
	"time"
)

// MaxSubAccounts is the per-owner sub-account capacity.
const MaxSubAccounts = 128

var (
	ErrSubAccountExists       = errors.New("sub-account already exists")
	ErrSubAccountLimitReached = errors.New("sub-account limit reached")
	ErrSubAccountNotFound     = errors.New("sub-account not found")
	ErrSubAccountInDebt       = errors.New("sub-account has unpaid due fee")
	ErrDueFeeOverflow         = errors.New("due fee overflow")
)

// SubAccount describes one derived value-holding account under an owner.
// Sub-accounts are keyed by nonce only.
type SubAccount struct {
	Nonce  uint32
	DueFee uint64
}

type Record struct {
	Id uint64

	// Owner is the owner account address the sub-accounts hang off of.
	Owner string

	SubAccounts []SubAccount

	Version uint64

	CreatedAt time.Time
}

// AddSubAccount appends a sub-account descriptor with a zero due fee.
func (r *Record) AddSubAccount(nonce uint32) error {
	if r.findSubAccount(nonce) != nil {
		return ErrSubAccountExists
	}

	if len(r.SubAccounts) >= MaxSubAccounts {
		return ErrSubAccountLimitReached
	}

	r.SubAccounts = append(r.SubAccounts, SubAccount{Nonce: nonce})
	return nil
}

// RemoveSubAccount removes a sub-account descriptor. A descriptor with an
// unpaid due fee can never be removed; it must be zeroed first via fee
// collection.
func (r *Record) RemoveSubAccount(nonce uint32) error {
	for i, existing := range r.SubAccounts {
		if existing.Nonce == nonce {
			if existing.DueFee > 0 {
				return ErrSubAccountInDebt
			}

			r.SubAccounts = append(r.SubAccounts[:i], r.SubAccounts[i+1:]...)
			return nil
		}
	}
	return ErrSubAccountNotFound
}

func (r *Record) HasSubAccount(nonce uint32) bool {
	return r.findSubAccount(nonce) != nil
}

func (r *Record) GetDueFee(nonce uint32) (uint64, error) {
	subAccount := r.findSubAccount(nonce)
	if subAccount == nil {
		return 0, ErrSubAccountNotFound
	}
	return subAccount.DueFee, nil
}

// AddDueFee accrues an owed amount against a sub-account with checked math.
func (r *Record) AddDueFee(nonce uint32, amount uint64) error {
	subAccount := r.findSubAccount(nonce)
	if subAccount == nil {
		return ErrSubAccountNotFound
	}

	if subAccount.DueFee > math.MaxUint64-amount {
		return ErrDueFeeOverflow
	}

	subAccount.DueFee += amount
	return nil
}

// SubDueFee settles an owed amount against a sub-account with checked math.
func (r *Record) SubDueFee(nonce uint32, amount uint64) error {
	subAccount := r.findSubAccount(nonce)
	if subAccount == nil {
		return ErrSubAccountNotFound
	}

	if amount > subAccount.DueFee {
		return ErrDueFeeOverflow
	}

	subAccount.DueFee -= amount
	return nil
}

// EligibleToClose reports whether the owner record may be destroyed.
func (r *Record) EligibleToClose() bool {
	return len(r.SubAccounts) == 0
}

func (r *Record) findSubAccount(nonce uint32) *SubAccount {
	for i := range r.SubAccounts {
		if r.SubAccounts[i].Nonce == nonce {
			return &r.SubAccounts[i]
		}
	}
	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Owner: r.Owner,

		SubAccounts: cloneSubAccounts(r.SubAccounts),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Owner = r.Owner

	dst.SubAccounts = cloneSubAccounts(r.SubAccounts)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (r *Record) Validate() error {
	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if len(r.SubAccounts) > MaxSubAccounts {
		return errors.New("sub-account count exceeds limit")
	}

	seen := make(map[uint32]struct{}, len(r.SubAccounts))
	for _, subAccount := range r.SubAccounts {
		if _, ok := seen[subAccount.Nonce]; ok {
			return errors.New("sub-account nonce is duplicated")
		}
		seen[subAccount.Nonce] = struct{}{}
	}

	return nil
}

func cloneSubAccounts(subAccounts []SubAccount) []SubAccount {
	if subAccounts == nil {
		return nil
	}

	cloned := make([]SubAccount, len(subAccounts))
	copy(cloned, subAccounts)
	return cloned
}
