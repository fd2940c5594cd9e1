package memory

import (
	"context"
	"crypto/ed25519"
	"math"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/easycoin-labs/agent-server/pkg/agent/chain"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

// Handler executes one instruction against staged state.
type Handler func(st *State, ixn solana.Instruction) error

type accountState struct {
	lamports uint64
	owner    string
	data     []byte
}

func (a *accountState) clone() *accountState {
	cloned := &accountState{
		lamports: a.lamports,
		owner:    a.owner,
	}
	if a.data != nil {
		cloned.data = make([]byte, len(a.data))
		copy(cloned.data, a.data)
	}
	return cloned
}

// Ledger is an in-memory chain simulator. The system, token and associated
// token programs are built in; anything else is registered per test via
// RegisterProgram.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*accountState
	programs map[string]Handler
}

func New() *Ledger {
	l := &Ledger{
		accounts: make(map[string]*accountState),
		programs: make(map[string]Handler),
	}

	l.RegisterProgram(system.ProgramKey[:], handleSystem)
	l.RegisterProgram(token.ProgramKey, handleToken)
	l.RegisterProgram(token.AssociatedTokenAccountProgramKey, handleAssociatedTokenAccount)

	return l
}

// RegisterProgram installs an instruction handler at a program address.
func (l *Ledger) RegisterProgram(program ed25519.PublicKey, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.programs[base58.Encode(program)] = handler
}

// Airdrop credits lamports to an account outside of any invocation.
func (l *Ledger) Airdrop(address string, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.accounts[address]
	if !ok {
		item = newSystemAccount()
		l.accounts[address] = item
	}
	item.lamports += lamports
}

func (l *Ledger) GetAccountInfo(_ context.Context, address string) (*chain.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.accounts[address]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}

	cloned := item.clone()
	return &chain.AccountInfo{
		Address:  address,
		Lamports: cloned.lamports,
		Owner:    cloned.owner,
		Data:     cloned.data,
	}, nil
}

func (l *Ledger) GetTokenAccountInfo(ctx context.Context, address string) (*token.Account, error) {
	info, err := l.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}

	if info.Owner != base58.Encode(token.ProgramKey) {
		return nil, chain.ErrInvalidTokenAccount
	}

	var tokenAccount token.Account
	if !tokenAccount.Unmarshal(info.Data) {
		return nil, chain.ErrInvalidTokenAccount
	}
	return &tokenAccount, nil
}

func (l *Ledger) GetRentExemptMinimum(_ context.Context, dataLen uint64) (uint64, error) {
	return system.RentExemptMinimum(dataLen), nil
}

func (l *Ledger) Invoke(_ context.Context, instructions []solana.Instruction, signers ...*common.DerivedAuthority) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[string]*accountState, len(l.accounts))
	for address, item := range l.accounts {
		staged[address] = item.clone()
	}

	signerSet := make(map[string]struct{}, len(signers))
	for _, signer := range signers {
		signerSet[base58.Encode(signer.Address())] = struct{}{}
	}

	st := &State{
		accounts: staged,
		signers:  signerSet,
	}

	for i, ixn := range instructions {
		handler, ok := l.programs[base58.Encode(ixn.Program)]
		if !ok {
			return chain.ErrUnknownProgram
		}

		if err := handler(st, ixn); err != nil {
			return errors.Wrapf(err, "instruction %d failed", i)
		}
	}

	l.accounts = staged
	return nil
}

// State is the staged account set visible to handlers during an invocation.
// Mutations are discarded unless every instruction succeeds.
type State struct {
	accounts map[string]*accountState
	signers  map[string]struct{}
}

func (st *State) IsSigner(key ed25519.PublicKey) bool {
	_, ok := st.signers[base58.Encode(key)]
	return ok
}

func (st *State) Exists(key ed25519.PublicKey) bool {
	_, ok := st.accounts[base58.Encode(key)]
	return ok
}

func (st *State) Lamports(key ed25519.PublicKey) uint64 {
	item, ok := st.accounts[base58.Encode(key)]
	if !ok {
		return 0
	}
	return item.lamports
}

func (st *State) SetLamports(key ed25519.PublicKey, lamports uint64) {
	st.getOrCreate(key).lamports = lamports
}

// Credit adds lamports, creating a system-owned account when absent.
func (st *State) Credit(key ed25519.PublicKey, amount uint64) error {
	item := st.getOrCreate(key)
	if item.lamports > math.MaxUint64-amount {
		return errors.New("lamport balance overflow")
	}
	item.lamports += amount
	return nil
}

// Debit removes lamports. The remaining balance must be zero or stay at or
// above the account's rent floor.
func (st *State) Debit(key ed25519.PublicKey, amount uint64) error {
	item, ok := st.accounts[base58.Encode(key)]
	if !ok || item.lamports < amount {
		return chain.ErrInsufficientFunds
	}

	remaining := item.lamports - amount
	if remaining > 0 && remaining < system.RentExemptMinimum(uint64(len(item.data))) {
		return chain.ErrBelowRentFloor
	}

	item.lamports = remaining
	return nil
}

func (st *State) Data(key ed25519.PublicKey) ([]byte, bool) {
	item, ok := st.accounts[base58.Encode(key)]
	if !ok {
		return nil, false
	}
	return item.data, true
}

func (st *State) SetData(key ed25519.PublicKey, data []byte) {
	st.getOrCreate(key).data = data
}

func (st *State) Owner(key ed25519.PublicKey) string {
	item, ok := st.accounts[base58.Encode(key)]
	if !ok {
		return ""
	}
	return item.owner
}

func (st *State) CreateAccount(key, owner ed25519.PublicKey, lamports, size uint64) error {
	address := base58.Encode(key)
	if existing, ok := st.accounts[address]; ok && existing.lamports > 0 {
		return errors.New("account already in use")
	}

	st.accounts[address] = &accountState{
		lamports: lamports,
		owner:    base58.Encode(owner),
		data:     make([]byte, size),
	}
	return nil
}

func (st *State) CloseAccount(key ed25519.PublicKey) {
	delete(st.accounts, base58.Encode(key))
}

func (st *State) getOrCreate(key ed25519.PublicKey) *accountState {
	address := base58.Encode(key)
	item, ok := st.accounts[address]
	if !ok {
		item = newSystemAccount()
		st.accounts[address] = item
	}
	return item
}

func newSystemAccount() *accountState {
	return &accountState{
		owner: base58.Encode(system.ProgramKey[:]),
	}
}
