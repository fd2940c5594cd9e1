package server

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/chain"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
	agent_sync "github.com/easycoin-labs/agent-server/pkg/sync"
)

const ownerLockStripes = 1024

// Server executes the custody, fee and delegated swap operations. Caller
// identities are assumed to be authenticated by the surrounding transport;
// the server enforces authorization only.
type Server struct {
	log *logrus.Entry

	data  data.DatabaseData
	chain chain.Ledger
	bus   event.Bus

	// program namespaces every derived address and capability
	program *common.Account

	// defaultAuthority is installed as the registry authority on Initialize
	defaultAuthority *common.Account

	// tipProgram owns the accounts eligible to receive tips
	tipProgram *common.Account

	// ownerLocks serializes value operations per owner account
	ownerLocks *agent_sync.StripedLock
}

func New(
	data data.DatabaseData,
	chainLedger chain.Ledger,
	bus event.Bus,
	program *common.Account,
	defaultAuthority *common.Account,
	tipProgram *common.Account,
) *Server {
	return &Server{
		log: logrus.StandardLogger().WithField("type", "agent/server"),

		data:  data,
		chain: chainLedger,
		bus:   bus,

		program:          program,
		defaultAuthority: defaultAuthority,
		tipProgram:       tipProgram,

		ownerLocks: agent_sync.NewStripedLock(ownerLockStripes),
	}
}

// lockOwnerAccount takes the stripe covering an owner account. Every
// operation that moves value under an owner or mutates its ledger record
// holds this lock for its duration.
func (s *Server) lockOwnerAccount(ownerAccount []byte) func() {
	lock := s.ownerLocks.Get(ownerAccount)
	lock.Lock()
	return lock.Unlock
}

func (s *Server) getRegistryRecord(ctx context.Context) (*registry.Record, error) {
	address, _, err := common.GetAuthorizationRegistryAddress(s.program)
	if err != nil {
		return nil, err
	}

	record, err := s.data.GetAuthorizationRegistry(ctx, base58.Encode(address))
	if err == registry.ErrNotFound {
		return nil, ErrNotInitialized
	}
	return record, err
}

// getActiveRegistryRecord loads the registry and enforces the Active status
// gate shared by every fee-sensitive and swap-sensitive operation.
func (s *Server) getActiveRegistryRecord(ctx context.Context) (*registry.Record, error) {
	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		return nil, err
	}

	if !record.IsActive() {
		return nil, ErrInvalidStatus
	}
	return record, nil
}

func (s *Server) getFeeRecord(ctx context.Context) (*fee.Record, error) {
	address, _, err := common.GetFeeRegistryAddress(s.program)
	if err != nil {
		return nil, err
	}

	record, err := s.data.GetFeeRegistry(ctx, base58.Encode(address))
	if err == fee.ErrNotFound {
		return nil, ErrNotInitialized
	}
	return record, err
}

func (s *Server) getPauseRecord(ctx context.Context) (*pause.Record, error) {
	address, _, err := common.GetPauseRegistryAddress(s.program)
	if err != nil {
		return nil, err
	}

	record, err := s.data.GetPauseRegistry(ctx, base58.Encode(address))
	if err == pause.ErrNotFound {
		return nil, ErrNotInitialized
	}
	return record, err
}

func (s *Server) getOwnerAccountAddress(owner *common.Account) (ed25519.PublicKey, error) {
	address, _, err := common.GetOwnerAccountAddress(s.program, owner)
	return address, err
}

func (s *Server) getOwnerLedgerRecord(ctx context.Context, owner *common.Account) (*ledger.Record, ed25519.PublicKey, error) {
	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.data.GetOwnerLedger(ctx, base58.Encode(ownerAccount))
	if err != nil {
		return nil, nil, err
	}
	return record, ownerAccount, nil
}

func (s *Server) requireAuthority(record *registry.Record, caller *common.Account) error {
	if record.Authority != caller.PublicKey().ToBase58() {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Server) requireOperator(record *registry.Record, caller *common.Account) error {
	if !record.HasOperator(caller.PublicKey().ToBase58()) {
		return ErrNotAuthorized
	}
	return nil
}
