package chain

import (
	"context"
	"errors"

	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidTokenAccount = errors.New("account is not a valid token account")
	ErrMissingSignature    = errors.New("required signature is missing")
	ErrInsufficientFunds   = errors.New("insufficient funds for transfer")
	ErrBelowRentFloor      = errors.New("balance would drop below the rent floor")
	ErrUnknownProgram      = errors.New("no program at the invoked address")
)

// AccountInfo is the durable state of a single account.
type AccountInfo struct {
	Address  string
	Lamports uint64

	// Owner is the program that owns the account and may mutate its data.
	Owner string

	Data []byte
}

// Ledger is the durable balance store and nested invocation target. All
// value movement flows through Invoke; reads are snapshots of committed
// state.
type Ledger interface {
	// GetAccountInfo gets committed state for an account
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// GetTokenAccountInfo gets committed state for an account and parses it
	// as a token account
	GetTokenAccountInfo(ctx context.Context, address string) (*token.Account, error)

	// GetRentExemptMinimum gets the rent floor for an account holding
	// dataLen bytes
	GetRentExemptMinimum(ctx context.Context, dataLen uint64) (uint64, error)

	// Invoke executes a set of instructions atomically. Signature
	// requirements are satisfied exclusively by the provided derived
	// authorities. A failing instruction aborts the entire invocation with
	// no effects.
	Invoke(ctx context.Context, instructions []solana.Instruction, signers ...*common.DerivedAuthority) error
}
