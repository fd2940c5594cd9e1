package memory

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycoin-labs/agent-server/pkg/agent/chain"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

func TestLedger_TransferHappyPath(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)
	authority := newTestAuthority(t, program)
	recipient := newTestAccount(t)

	ledger.Airdrop(base58.Encode(authority.Address()), 10_000_000)

	err := ledger.Invoke(
		ctx,
		[]solana.Instruction{
			system.Transfer(authority.Address(), recipient.PublicKey().ToBytes(), 5_000_000),
		},
		authority,
	)
	require.NoError(t, err)

	info, err := ledger.GetAccountInfo(ctx, base58.Encode(authority.Address()))
	require.NoError(t, err)
	assert.EqualValues(t, 5_000_000, info.Lamports)

	info, err = ledger.GetAccountInfo(ctx, recipient.PublicKey().ToBase58())
	require.NoError(t, err)
	assert.EqualValues(t, 5_000_000, info.Lamports)
}

func TestLedger_MissingSignature(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)
	authority := newTestAuthority(t, program)
	recipient := newTestAccount(t)

	ledger.Airdrop(base58.Encode(authority.Address()), 10_000_000)

	err := ledger.Invoke(
		ctx,
		[]solana.Instruction{
			system.Transfer(authority.Address(), recipient.PublicKey().ToBytes(), 5_000_000),
		},
	)
	require.Error(t, err)
	assert.Equal(t, chain.ErrMissingSignature, errors.Cause(err))

	info, err := ledger.GetAccountInfo(ctx, base58.Encode(authority.Address()))
	require.NoError(t, err)
	assert.EqualValues(t, 10_000_000, info.Lamports)
}

func TestLedger_FailedInstructionAbortsInvocation(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)
	authority := newTestAuthority(t, program)
	recipient := newTestAccount(t)

	ledger.Airdrop(base58.Encode(authority.Address()), 10_000_000)

	err := ledger.Invoke(
		ctx,
		[]solana.Instruction{
			system.Transfer(authority.Address(), recipient.PublicKey().ToBytes(), 5_000_000),
			system.Transfer(authority.Address(), recipient.PublicKey().ToBytes(), 6_000_000),
		},
		authority,
	)
	require.Error(t, err)
	assert.Equal(t, chain.ErrInsufficientFunds, errors.Cause(err))

	// The first transfer must not have been applied
	info, err := ledger.GetAccountInfo(ctx, base58.Encode(authority.Address()))
	require.NoError(t, err)
	assert.EqualValues(t, 10_000_000, info.Lamports)

	_, err = ledger.GetAccountInfo(ctx, recipient.PublicKey().ToBase58())
	assert.Equal(t, chain.ErrAccountNotFound, err)
}

func TestLedger_NativeTokenAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)
	authority := newTestAuthority(t, program)

	rent := system.RentExemptMinimum(token.AccountSize)
	ledger.Airdrop(base58.Encode(authority.Address()), 100_000_000)

	createIxn, ata, err := token.CreateAssociatedTokenAccountIdempotent(
		authority.Address(),
		authority.Address(),
		token.NativeMint,
	)
	require.NoError(t, err)

	// Create, fund and sync the wrapped native account in one invocation
	err = ledger.Invoke(
		ctx,
		[]solana.Instruction{
			createIxn,
			system.Transfer(authority.Address(), ata, 10_000_000),
			token.SyncNative(ata),
		},
		authority,
	)
	require.NoError(t, err)

	tokenAccount, err := ledger.GetTokenAccountInfo(ctx, base58.Encode(ata))
	require.NoError(t, err)
	assert.EqualValues(t, 10_000_000, tokenAccount.Amount)
	require.NotNil(t, tokenAccount.IsNative)
	assert.Equal(t, rent, *tokenAccount.IsNative)

	// Re-creating is a no-op
	err = ledger.Invoke(ctx, []solana.Instruction{createIxn}, authority)
	require.NoError(t, err)

	// Closing returns all lamports to the destination
	err = ledger.Invoke(
		ctx,
		[]solana.Instruction{
			token.CloseAccount(ata, authority.Address(), authority.Address()),
		},
		authority,
	)
	require.NoError(t, err)

	_, err = ledger.GetAccountInfo(ctx, base58.Encode(ata))
	assert.Equal(t, chain.ErrAccountNotFound, err)

	info, err := ledger.GetAccountInfo(ctx, base58.Encode(authority.Address()))
	require.NoError(t, err)
	assert.EqualValues(t, 100_000_000, info.Lamports)
}

func TestLedger_RentFloorEnforced(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)
	authority := newTestAuthority(t, program)
	recipient := newTestAccount(t)

	rent := system.RentExemptMinimum(0)
	ledger.Airdrop(base58.Encode(authority.Address()), rent+1_000)

	// Leaving a nonzero balance below the rent floor is rejected
	err := ledger.Invoke(
		ctx,
		[]solana.Instruction{
			system.Transfer(authority.Address(), recipient.PublicKey().ToBytes(), 2_000),
		},
		authority,
	)
	require.Error(t, err)
	assert.Equal(t, chain.ErrBelowRentFloor, errors.Cause(err))

	// Draining to exactly zero is allowed
	err = ledger.Invoke(
		ctx,
		[]solana.Instruction{
			system.Transfer(authority.Address(), recipient.PublicKey().ToBytes(), rent+1_000),
		},
		authority,
	)
	require.NoError(t, err)
}

func TestLedger_UnknownProgram(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)

	err := ledger.Invoke(ctx, []solana.Instruction{
		solana.NewInstruction(program.PublicKey().ToBytes(), []byte{1, 2, 3}),
	})
	assert.Equal(t, chain.ErrUnknownProgram, err)
}

func TestLedger_RegisteredProgram(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	program := newTestProgram(t)
	target := newTestAccount(t)

	ledger.RegisterProgram(program.PublicKey().ToBytes(), func(st *State, ixn solana.Instruction) error {
		return st.Credit(ixn.Accounts[0].PublicKey, 42)
	})

	err := ledger.Invoke(ctx, []solana.Instruction{
		solana.NewInstruction(
			program.PublicKey().ToBytes(),
			nil,
			solana.NewAccountMeta(target.PublicKey().ToBytes(), false),
		),
	})
	require.NoError(t, err)

	info, err := ledger.GetAccountInfo(ctx, target.PublicKey().ToBase58())
	require.NoError(t, err)
	assert.EqualValues(t, 42, info.Lamports)
}

func newTestAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)
	return account
}

func newTestProgram(t *testing.T) *common.Account {
	return newTestAccount(t)
}

func newTestAuthority(t *testing.T, program *common.Account) *common.DerivedAuthority {
	ownerAccount, _, err := common.GetOwnerAccountAddress(program, newTestAccount(t))
	require.NoError(t, err)

	authority, err := common.DeriveSubAccountAuthority(program, ownerAccount, 0)
	require.NoError(t, err)
	return authority
}
