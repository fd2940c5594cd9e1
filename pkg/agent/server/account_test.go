package server

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chain_memory "github.com/easycoin-labs/agent-server/pkg/agent/chain/memory"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	compute_budget "github.com/easycoin-labs/agent-server/pkg/solana/computebudget"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

func TestServer_OwnerAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	subAccount := env.setupFundedSubAccount(t, owner, 0, 0)

	rentFloor, err := env.chain.GetRentExemptMinimum(env.ctx, 0)
	require.NoError(t, err)

	// The sub-account was funded to the rent floor from the owner account
	assert.EqualValues(t, rentFloor, env.getLamports(t, subAccount))

	assert.Equal(t, ErrAlreadyInitialized, env.server.CreateOwnerAccount(env.ctx, owner))
	assert.Equal(t, ledger.ErrSubAccountExists, errors.Cause(env.server.CreateSubAccount(env.ctx, owner, 0)))

	assert.Equal(t, ErrOwnerNotEligibleToClose, env.server.CloseOwnerAccount(env.ctx, owner))

	require.NoError(t, env.server.WithdrawAll(env.ctx, owner, 0))
	assert.EqualValues(t, rentFloor, env.getLamports(t, owner.PublicKey().ToBytes()))

	require.NoError(t, env.server.CloseOwnerAccount(env.ctx, owner))

	ownerAccount := env.getOwnerAccountAddress(t, owner)
	_, err = env.data.GetOwnerLedger(env.ctx, base58.Encode(ownerAccount))
	assert.Equal(t, ledger.ErrNotFound, err)

	// The identity can start over with a fresh ledger
	require.NoError(t, env.server.CreateOwnerAccount(env.ctx, owner))
}

func TestServer_CloseOwnerAccountReturnsResidualLamports(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	require.NoError(t, env.server.CreateOwnerAccount(env.ctx, owner))

	ownerAccount := env.getOwnerAccountAddress(t, owner)
	env.chain.Airdrop(base58.Encode(ownerAccount), 123456)

	require.NoError(t, env.server.CloseOwnerAccount(env.ctx, owner))
	assert.EqualValues(t, 123456, env.getLamports(t, owner.PublicKey().ToBytes()))
	assert.EqualValues(t, 0, env.getLamports(t, ownerAccount))
}

func TestServer_CreateSubAccountRequiresFundedOwnerAccount(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	require.NoError(t, env.server.CreateOwnerAccount(env.ctx, owner))

	assert.Error(t, env.server.CreateSubAccount(env.ctx, owner, 0))

	// The failed funding left no sub-account behind
	record, _, err := env.server.getOwnerLedgerRecord(env.ctx, owner)
	require.NoError(t, err)
	assert.False(t, record.HasSubAccount(0))
}

func TestServer_Withdraw(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	subAccount := env.setupFundedSubAccount(t, owner, 0, 1_000_000)

	rentFloor, err := env.chain.GetRentExemptMinimum(env.ctx, 0)
	require.NoError(t, err)

	env.addDueFee(t, owner, 0, 10_000)
	assert.Equal(t, ErrDueFeeNotPaid, env.server.Withdraw(env.ctx, owner, 0, 1))
	assert.Equal(t, ErrDueFeeNotPaid, env.server.WithdrawAll(env.ctx, owner, 0))

	// Settle the debt out of band
	ownerAccount := env.getOwnerAccountAddress(t, owner)
	record, err := env.data.GetOwnerLedger(env.ctx, base58.Encode(ownerAccount))
	require.NoError(t, err)
	require.NoError(t, record.SubDueFee(0, 10_000))
	require.NoError(t, env.data.SaveOwnerLedger(env.ctx, record))

	// The rent floor is never spendable
	assert.Equal(t, ErrBalanceInsufficient, env.server.Withdraw(env.ctx, owner, 0, 1_000_001))

	require.NoError(t, env.server.Withdraw(env.ctx, owner, 0, 400_000))
	assert.EqualValues(t, 400_000, env.getLamports(t, owner.PublicKey().ToBytes()))
	assert.EqualValues(t, rentFloor+600_000, env.getLamports(t, subAccount))

	require.NoError(t, env.server.Withdraw(env.ctx, owner, 0, 600_000))

	require.NoError(t, env.server.WithdrawAll(env.ctx, owner, 0))
	assert.EqualValues(t, rentFloor+1_000_000, env.getLamports(t, owner.PublicKey().ToBytes()))
	assert.EqualValues(t, 0, env.getLamports(t, subAccount))

	assert.Equal(t, ledger.ErrSubAccountNotFound, env.server.Withdraw(env.ctx, owner, 0, 1))
}

func TestServer_CollectFee(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	subAccount := env.setupFundedSubAccount(t, owner, 0, 10_000_000)
	env.addDueFee(t, owner, 0, 10_000)

	declared := []solana.Instruction{
		compute_budget.SetComputeUnitLimit(200_000),
		compute_budget.SetComputeUnitPrice(1_000_000),
	}

	ownerAccount := base58.Encode(env.getOwnerAccountAddress(t, owner))
	args := &CollectFeeArgs{
		OwnerAccount:            ownerAccount,
		Nonce:                   0,
		DeclaredInstructions:    declared,
		TransactionFeeCollector: env.txCollector,
		TradeFeeCollector:       env.tradeCollector,
	}

	assert.Equal(t, ErrNotAuthorized, env.server.CollectFee(env.ctx, env.authority, args))

	unregistered := newTestAccount(t)
	assert.Equal(t, ErrFeeCollectorInvalid, env.server.CollectFee(env.ctx, env.operator, &CollectFeeArgs{
		OwnerAccount:            ownerAccount,
		Nonce:                   0,
		DeclaredInstructions:    declared,
		TransactionFeeCollector: unregistered,
		TradeFeeCollector:       env.tradeCollector,
	}))

	assert.Equal(t, ErrMalformedFeeInstructions, env.server.CollectFee(env.ctx, env.operator, &CollectFeeArgs{
		OwnerAccount:            ownerAccount,
		Nonce:                   0,
		DeclaredInstructions:    []solana.Instruction{declared[1], declared[0]},
		TransactionFeeCollector: env.txCollector,
		TradeFeeCollector:       env.tradeCollector,
	}))

	require.NoError(t, env.server.CollectFee(env.ctx, env.operator, args))

	// 5000 base plus 200k units at 1M micro-lamports each
	assert.EqualValues(t, 205_000, env.getLamports(t, env.txCollector.PublicKey().ToBytes()))
	assert.EqualValues(t, 10_000, env.getLamports(t, env.tradeCollector.PublicKey().ToBytes()))

	record, _, err := env.server.getOwnerLedgerRecord(env.ctx, owner)
	require.NoError(t, err)
	dueFee, err := record.GetDueFee(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, dueFee)

	require.Len(t, *env.events, 1)
	payload, ok := (*env.events)[0].Payload.(event.FeeCollected)
	require.True(t, ok)
	assert.Equal(t, base58.Encode(subAccount), payload.SubAccount)
	assert.EqualValues(t, 205_000, payload.TransactionFee)
	assert.EqualValues(t, 10_000, payload.TradeFee)
}

func TestServer_CollectFeeOnlyTradeFee(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	env.setupFundedSubAccount(t, owner, 0, 10_000_000)
	env.addDueFee(t, owner, 0, 2_500)

	require.NoError(t, env.server.CollectFee(env.ctx, env.operator, &CollectFeeArgs{
		OwnerAccount:            base58.Encode(env.getOwnerAccountAddress(t, owner)),
		Nonce:                   0,
		OnlyTradeFee:            true,
		TransactionFeeCollector: env.txCollector,
		TradeFeeCollector:       env.tradeCollector,
	}))

	assert.EqualValues(t, 0, env.getLamports(t, env.txCollector.PublicKey().ToBytes()))
	assert.EqualValues(t, 2_500, env.getLamports(t, env.tradeCollector.PublicKey().ToBytes()))

	require.Len(t, *env.events, 1)
	payload, ok := (*env.events)[0].Payload.(event.FeeCollected)
	require.True(t, ok)
	assert.EqualValues(t, 0, payload.TransactionFee)
	assert.EqualValues(t, 2_500, payload.TradeFee)
}

func TestServer_UserTokenAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	subAccount := env.setupFundedSubAccount(t, owner, 0, 1_000_000_000)

	nativeMint, err := common.NewAccountFromPublicKeyBytes(token.NativeMint)
	require.NoError(t, err)

	assert.Equal(t, ErrNotAuthorized, env.server.CreateUserTokenAccount(env.ctx, env.authority, owner, 0, nativeMint))

	// Wrapping requires the token account to exist
	assert.Equal(t, ErrDestinationAccountInvalid, env.server.TransferAndSyncNative(env.ctx, env.operator, owner, 0, 1))

	require.NoError(t, env.server.CreateUserTokenAccount(env.ctx, env.operator, owner, 0, nativeMint))

	tokenAccountAddress, err := token.GetAssociatedAccount(subAccount, token.NativeMint)
	require.NoError(t, err)

	lamportsAfterCreate := env.getLamports(t, subAccount)

	// Creation is idempotent and charges nothing the second time
	require.NoError(t, env.server.CreateUserTokenAccount(env.ctx, env.operator, owner, 0, nativeMint))
	assert.Equal(t, lamportsAfterCreate, env.getLamports(t, subAccount))

	require.NoError(t, env.server.TransferAndSyncNative(env.ctx, env.operator, owner, 0, 1_000_000))

	tokenAccount, err := env.chain.GetTokenAccountInfo(env.ctx, base58.Encode(tokenAccountAddress))
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, tokenAccount.Amount)

	tokenAccountLamports := env.getLamports(t, tokenAccountAddress)

	require.NoError(t, env.server.CloseUserTokenAccount(env.ctx, env.operator, owner, 0, nativeMint))
	assert.EqualValues(t, lamportsAfterCreate-1_000_000+tokenAccountLamports, env.getLamports(t, subAccount))

	require.Len(t, *env.events, 1)
	payload, ok := (*env.events)[0].Payload.(event.TokenAccountClosed)
	require.True(t, ok)
	assert.Equal(t, base58.Encode(tokenAccountAddress), payload.Account)
	assert.Equal(t, base58.Encode(subAccount), payload.SubAccount)
	assert.Equal(t, tokenAccountLamports, payload.Lamports)

	// Closing a closed account is a silent no-op
	require.NoError(t, env.server.CloseUserTokenAccount(env.ctx, env.operator, owner, 0, nativeMint))
	require.Len(t, *env.events, 1)
}

func TestServer_CloseUserTokenAccountSkipsFundedAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)
	subAccount := env.setupFundedSubAccount(t, owner, 0, 1_000_000_000)

	mint := newTestAccount(t)
	require.NoError(t, env.server.CreateUserTokenAccount(env.ctx, env.operator, owner, 0, mint))

	tokenAccountAddress, err := token.GetAssociatedAccount(subAccount, mint.PublicKey().ToBytes())
	require.NoError(t, err)

	env.setTokenBalance(t, tokenAccountAddress, 5)

	require.NoError(t, env.server.CloseUserTokenAccount(env.ctx, env.operator, owner, 0, mint))
	assert.Empty(t, *env.events)

	_, err = env.chain.GetTokenAccountInfo(env.ctx, base58.Encode(tokenAccountAddress))
	require.NoError(t, err)

	env.setTokenBalance(t, tokenAccountAddress, 0)

	require.NoError(t, env.server.CloseUserTokenAccount(env.ctx, env.operator, owner, 0, mint))
	require.Len(t, *env.events, 1)
}

// setTokenBalance rewrites a token account's amount through a registered
// test program.
func (env *testEnv) setTokenBalance(t *testing.T, address []byte, amount uint64) {
	program := newTestAccount(t)
	env.chain.RegisterProgram(program.PublicKey().ToBytes(), func(st *chain_memory.State, _ solana.Instruction) error {
		data, ok := st.Data(address)
		if !ok {
			return errors.New("account not found")
		}

		var tokenAccount token.Account
		if !tokenAccount.Unmarshal(data) {
			return errors.New("not a token account")
		}

		tokenAccount.Amount = amount
		st.SetData(address, tokenAccount.Marshal())
		return nil
	})

	require.NoError(t, env.chain.Invoke(env.ctx, []solana.Instruction{
		solana.NewInstruction(program.PublicKey().ToBytes(), nil),
	}))
}
