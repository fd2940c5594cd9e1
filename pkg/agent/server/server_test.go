package server

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chain_memory "github.com/easycoin-labs/agent-server/pkg/agent/chain/memory"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
)

type testEnv struct {
	ctx    context.Context
	data   data.DatabaseData
	chain  *chain_memory.Ledger
	server *Server

	events *[]event.Event

	program    *common.Account
	authority  *common.Account
	operator   *common.Account
	pauser     *common.Account
	tipProgram *common.Account

	txCollector    *common.Account
	tradeCollector *common.Account
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		ctx:   context.Background(),
		data:  data.NewTestDatabaseProvider(),
		chain: chain_memory.New(),

		program:    newTestAccount(t),
		authority:  newTestAccount(t),
		operator:   newTestAccount(t),
		pauser:     newTestAccount(t),
		tipProgram: newTestAccount(t),

		txCollector:    newTestAccount(t),
		tradeCollector: newTestAccount(t),
	}

	var events []event.Event
	env.events = &events

	bus := event.NewMemoryBus()
	bus.Subscribe(func(_ context.Context, e event.Event) {
		events = append(events, e)
	})

	env.server = New(
		env.data,
		env.chain,
		bus,
		env.program,
		env.authority,
		env.tipProgram,
	)
	return env
}

// setupRegistries brings the system to a fully operational state with an
// operator, a pauser, a 1/100 swap fee and both collectors registered.
func (env *testEnv) setupRegistries(t *testing.T) {
	require.NoError(t, env.server.Initialize(env.ctx))
	require.NoError(t, env.server.InitializePause(env.ctx, env.authority, env.pauser))
	require.NoError(t, env.server.AddOperators(env.ctx, env.authority, env.operator))
	require.NoError(t, env.server.InitializeFee(env.ctx, env.authority, 1, 100))
	require.NoError(t, env.server.AddFeeCollectors(env.ctx, env.authority, env.txCollector, env.tradeCollector))
}

// setupFundedSubAccount creates an owner ledger with one sub-account at the
// given nonce and airdrops extra lamports on top of the rent floor.
func (env *testEnv) setupFundedSubAccount(t *testing.T, owner *common.Account, nonce uint32, extraLamports uint64) ed25519.PublicKey {
	ownerAccount := env.getOwnerAccountAddress(t, owner)

	rentFloor, err := env.chain.GetRentExemptMinimum(env.ctx, 0)
	require.NoError(t, err)
	env.chain.Airdrop(base58.Encode(ownerAccount), rentFloor)

	require.NoError(t, env.server.CreateOwnerAccount(env.ctx, owner))
	require.NoError(t, env.server.CreateSubAccount(env.ctx, owner, nonce))

	subAccount := env.getSubAccountAddress(t, owner, nonce)
	if extraLamports > 0 {
		env.chain.Airdrop(base58.Encode(subAccount), extraLamports)
	}
	return subAccount
}

func (env *testEnv) getOwnerAccountAddress(t *testing.T, owner *common.Account) ed25519.PublicKey {
	address, _, err := common.GetOwnerAccountAddress(env.program, owner)
	require.NoError(t, err)
	return address
}

func (env *testEnv) getSubAccountAddress(t *testing.T, owner *common.Account, nonce uint32) ed25519.PublicKey {
	ownerAccount := env.getOwnerAccountAddress(t, owner)
	address, _, err := common.GetSubAccountAddress(env.program, ownerAccount, nonce)
	require.NoError(t, err)
	return address
}

func (env *testEnv) getLamports(t *testing.T, address ed25519.PublicKey) uint64 {
	lamports, err := env.server.getLamports(env.ctx, base58.Encode(address))
	require.NoError(t, err)
	return lamports
}

// addDueFee accrues debt directly against the ledger record, standing in
// for a prior swap.
func (env *testEnv) addDueFee(t *testing.T, owner *common.Account, nonce uint32, amount uint64) {
	ownerAccount := env.getOwnerAccountAddress(t, owner)

	record, err := env.data.GetOwnerLedger(env.ctx, base58.Encode(ownerAccount))
	require.NoError(t, err)
	require.NoError(t, record.AddDueFee(nonce, amount))
	require.NoError(t, env.data.SaveOwnerLedger(env.ctx, record))
}

func newTestAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)
	return account
}

func TestServer_Initialize(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.server.Initialize(env.ctx))
	assert.Equal(t, ErrAlreadyInitialized, env.server.Initialize(env.ctx))

	record, err := env.server.getRegistryRecord(env.ctx)
	require.NoError(t, err)
	assert.True(t, record.IsActive())
	assert.Equal(t, env.authority.PublicKey().ToBase58(), record.Authority)
}

func TestServer_OperationsRequireInitialization(t *testing.T) {
	env := newTestEnv(t)
	owner := newTestAccount(t)

	assert.Equal(t, ErrNotInitialized, env.server.TransferAuthority(env.ctx, env.authority, newTestAccount(t)))
	assert.Equal(t, ErrNotInitialized, env.server.AddOperators(env.ctx, env.authority, env.operator))
	assert.Equal(t, ErrNotInitialized, env.server.CreateOwnerAccount(env.ctx, owner))
}

func TestServer_TransferAuthority(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	next := newTestAccount(t)

	assert.Equal(t, ErrNotAuthorized, env.server.TransferAuthority(env.ctx, next, next))
	require.NoError(t, env.server.TransferAuthority(env.ctx, env.authority, next))

	// The previous authority no longer holds any power
	assert.Equal(t, ErrNotAuthorized, env.server.AddOperators(env.ctx, env.authority, newTestAccount(t)))
	require.NoError(t, env.server.AddOperators(env.ctx, next, newTestAccount(t)))
}

func TestServer_ManageOperators(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	other := newTestAccount(t)

	assert.Equal(t, ErrNotAuthorized, env.server.AddOperators(env.ctx, other, other))

	require.NoError(t, env.server.AddOperators(env.ctx, env.authority, other))
	require.NoError(t, env.server.AddOperators(env.ctx, env.authority, other))

	record, err := env.server.getRegistryRecord(env.ctx)
	require.NoError(t, err)
	assert.True(t, record.HasOperator(other.PublicKey().ToBase58()))

	require.NoError(t, env.server.RemoveOperators(env.ctx, env.authority, other))

	record, err = env.server.getRegistryRecord(env.ctx)
	require.NoError(t, err)
	assert.False(t, record.HasOperator(other.PublicKey().ToBase58()))
	assert.True(t, record.HasOperator(env.operator.PublicKey().ToBase58()))
}

func TestServer_PauseAndUnpause(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	owner := newTestAccount(t)

	assert.Equal(t, ErrNotAuthorized, env.server.Pause(env.ctx, owner))

	require.NoError(t, env.server.Pause(env.ctx, env.pauser))

	// Value operations are rejected while paused
	assert.Equal(t, ErrInvalidStatus, env.server.CreateOwnerAccount(env.ctx, owner))
	assert.Equal(t, ErrInvalidStatus, env.server.AddOperators(env.ctx, env.authority, newTestAccount(t)))

	// Pausing twice is an invalid transition
	assert.Equal(t, ErrInvalidStatus, env.server.Pause(env.ctx, env.pauser))

	// The authority can also flip the switch
	require.NoError(t, env.server.Unpause(env.ctx, env.authority))
	assert.Equal(t, ErrInvalidStatus, env.server.Unpause(env.ctx, env.authority))
}

func TestServer_SetPauser(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	next := newTestAccount(t)

	assert.Equal(t, ErrNotAuthorized, env.server.SetPauser(env.ctx, next, next))
	require.NoError(t, env.server.SetPauser(env.ctx, env.authority, next))

	assert.Equal(t, ErrNotAuthorized, env.server.Pause(env.ctx, env.pauser))
	require.NoError(t, env.server.Pause(env.ctx, next))
}

func TestServer_InitializePauseIsOneShot(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.server.Initialize(env.ctx))

	require.NoError(t, env.server.InitializePause(env.ctx, env.authority, env.pauser))
	assert.Equal(t, ErrAlreadyInitialized, env.server.InitializePause(env.ctx, env.authority, env.pauser))
}

func TestServer_InitializeFeeIsOneShot(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.server.Initialize(env.ctx))

	assert.Equal(t, fee.ErrInvalidFeeValue, env.server.InitializeFee(env.ctx, env.authority, 1, 0))

	require.NoError(t, env.server.InitializeFee(env.ctx, env.authority, 1, 100))
	assert.Equal(t, ErrAlreadyInitialized, env.server.InitializeFee(env.ctx, env.authority, 1, 100))

	record, err := env.server.getFeeRecord(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, record.GetFee(fee.ParameterSwapFeeNumerator))
	assert.EqualValues(t, 100, record.GetFee(fee.ParameterSwapFeeDenominator))
}

func TestServer_SetFees(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	assert.Equal(t, fee.ErrInvalidFeeValue, env.server.SetFees(env.ctx, env.authority, FeeEntry{fee.ParameterSwapFeeDenominator, 0}))
	assert.Equal(t, ErrNotAuthorized, env.server.SetFees(env.ctx, env.operator, FeeEntry{fee.ParameterSwapFeeNumerator, 2}))

	require.NoError(t, env.server.SetFees(
		env.ctx,
		env.authority,
		FeeEntry{fee.ParameterSwapFeeNumerator, 3},
		FeeEntry{fee.ParameterSwapFeeDenominator, 200},
	))

	record, err := env.server.getFeeRecord(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, record.GetFee(fee.ParameterSwapFeeNumerator))
	assert.EqualValues(t, 200, record.GetFee(fee.ParameterSwapFeeDenominator))
}

func TestServer_ManageFeeCollectors(t *testing.T) {
	env := newTestEnv(t)
	env.setupRegistries(t)

	other := newTestAccount(t)

	require.NoError(t, env.server.AddFeeCollectors(env.ctx, env.authority, other))
	require.NoError(t, env.server.RemoveFeeCollectors(env.ctx, env.authority, other))

	record, err := env.server.getFeeRecord(env.ctx)
	require.NoError(t, err)
	assert.False(t, record.HasCollector(other.PublicKey().ToBase58()))
	assert.True(t, record.HasCollector(env.txCollector.PublicKey().ToBase58()))
}
