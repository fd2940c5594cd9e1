package async_collector

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chain_memory "github.com/easycoin-labs/agent-server/pkg/agent/chain/memory"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	agent_data "github.com/easycoin-labs/agent-server/pkg/agent/data"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
	"github.com/easycoin-labs/agent-server/pkg/agent/server"
)

type testEnv struct {
	ctx   context.Context
	data  agent_data.DatabaseData
	chain *chain_memory.Ledger
	agent *server.Server

	program        *common.Account
	authority      *common.Account
	operator       *common.Account
	txCollector    *common.Account
	tradeCollector *common.Account
}

func setup(t *testing.T) *testEnv {
	env := &testEnv{
		ctx:   context.Background(),
		data:  agent_data.NewTestDatabaseProvider(),
		chain: chain_memory.New(),

		program:        newTestAccount(t),
		authority:      newTestAccount(t),
		operator:       newTestAccount(t),
		txCollector:    newTestAccount(t),
		tradeCollector: newTestAccount(t),
	}

	env.agent = server.New(
		env.data,
		env.chain,
		event.NewMemoryBus(),
		env.program,
		env.authority,
		newTestAccount(t),
	)

	require.NoError(t, env.agent.Initialize(env.ctx))
	require.NoError(t, env.agent.AddOperators(env.ctx, env.authority, env.operator))
	require.NoError(t, env.agent.InitializeFee(env.ctx, env.authority, 1, 100))
	require.NoError(t, env.agent.AddFeeCollectors(env.ctx, env.authority, env.txCollector, env.tradeCollector))

	return env
}

func (env *testEnv) newWorker(t *testing.T, overrides *testOverrides) *service {
	worker := NewCollectorService(
		env.data,
		env.agent,
		env.operator,
		env.txCollector,
		env.tradeCollector,
		withManualTestOverrides(overrides),
	)
	return worker.(*service)
}

// setupIndebtedSubAccount creates an owner with one funded sub-account and
// accrues a due fee against it.
func (env *testEnv) setupIndebtedSubAccount(t *testing.T, lamports, dueFee uint64) string {
	owner := newTestAccount(t)

	ownerAccount, _, err := common.GetOwnerAccountAddress(env.program, owner)
	require.NoError(t, err)

	rentFloor, err := env.chain.GetRentExemptMinimum(env.ctx, 0)
	require.NoError(t, err)
	env.chain.Airdrop(base58.Encode(ownerAccount), rentFloor)

	require.NoError(t, env.agent.CreateOwnerAccount(env.ctx, owner))
	require.NoError(t, env.agent.CreateSubAccount(env.ctx, owner, 0))

	subAccount, _, err := common.GetSubAccountAddress(env.program, ownerAccount, 0)
	require.NoError(t, err)
	if lamports > 0 {
		env.chain.Airdrop(base58.Encode(subAccount), lamports)
	}

	record, err := env.data.GetOwnerLedger(env.ctx, base58.Encode(ownerAccount))
	require.NoError(t, err)
	require.NoError(t, record.AddDueFee(0, dueFee))
	require.NoError(t, env.data.SaveOwnerLedger(env.ctx, record))

	return base58.Encode(ownerAccount)
}

func (env *testEnv) getDueFee(t *testing.T, ownerAccount string) uint64 {
	record, err := env.data.GetOwnerLedger(env.ctx, ownerAccount)
	require.NoError(t, err)

	dueFee, err := record.GetDueFee(0)
	require.NoError(t, err)
	return dueFee
}

func (env *testEnv) getLamports(t *testing.T, account *common.Account) uint64 {
	info, err := env.chain.GetAccountInfo(env.ctx, account.PublicKey().ToBase58())
	require.NoError(t, err)
	return info.Lamports
}

func newTestAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)
	return account
}

func TestCollectorService_SweepRespectsThreshold(t *testing.T) {
	env := setup(t)
	worker := env.newWorker(t, &testOverrides{minDueFee: 1_000})

	indebted := env.setupIndebtedSubAccount(t, 1_000_000, 5_000)
	belowThreshold := env.setupIndebtedSubAccount(t, 1_000_000, 500)

	require.NoError(t, worker.collectDueFees(env.ctx))

	assert.EqualValues(t, 5_000, env.getLamports(t, env.tradeCollector))
	assert.EqualValues(t, 0, env.getDueFee(t, indebted))
	assert.EqualValues(t, 500, env.getDueFee(t, belowThreshold))

	// A second sweep finds nothing above the threshold
	require.NoError(t, worker.collectDueFees(env.ctx))
	assert.EqualValues(t, 5_000, env.getLamports(t, env.tradeCollector))
}

func TestCollectorService_SweepPagesThroughLedgers(t *testing.T) {
	env := setup(t)
	worker := env.newWorker(t, &testOverrides{batchSize: 1, minDueFee: 1})

	owners := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		owners = append(owners, env.setupIndebtedSubAccount(t, 1_000_000, 2_000))
	}

	require.NoError(t, worker.collectDueFees(env.ctx))

	assert.EqualValues(t, 6_000, env.getLamports(t, env.tradeCollector))
	for _, ownerAccount := range owners {
		assert.EqualValues(t, 0, env.getDueFee(t, ownerAccount))
	}
}

func TestCollectorService_SweepSkipsInsolventSubAccount(t *testing.T) {
	env := setup(t)
	worker := env.newWorker(t, &testOverrides{minDueFee: 1})

	// The sub-account holds nothing above the rent floor, so collection
	// cannot settle on chain and the debt stays on the ledger
	insolvent := env.setupIndebtedSubAccount(t, 0, 5_000)
	solvent := env.setupIndebtedSubAccount(t, 1_000_000, 2_000)

	require.NoError(t, worker.collectDueFees(env.ctx))

	assert.EqualValues(t, 2_000, env.getLamports(t, env.tradeCollector))
	assert.EqualValues(t, 5_000, env.getDueFee(t, insolvent))
	assert.EqualValues(t, 0, env.getDueFee(t, solvent))
}
