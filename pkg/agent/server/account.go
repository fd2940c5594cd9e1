package server

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/chain"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
	"github.com/easycoin-labs/agent-server/pkg/pointer"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
)

// CreateOwnerAccount creates the owner ledger record for an end user owner
// identity.
func (s *Server) CreateOwnerAccount(ctx context.Context, owner *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "CreateOwnerAccount")
	defer tracer.End()

	if _, err := s.getActiveRegistryRecord(ctx); err != nil {
		tracer.OnError(err)
		return err
	}

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	_, err = s.data.GetOwnerLedger(ctx, base58.Encode(ownerAccount))
	if err == nil {
		return ErrAlreadyInitialized
	}
	if err != ledger.ErrNotFound {
		tracer.OnError(err)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method": "CreateOwnerAccount",
		"owner":  owner.PublicKey().ToBase58(),
	}).Info("creating owner account")

	err = s.data.SaveOwnerLedger(ctx, &ledger.Record{
		Owner:     base58.Encode(ownerAccount),
		CreatedAt: time.Now(),
	})
	tracer.OnError(err)
	return err
}

// CloseOwnerAccount destroys an empty owner ledger record and returns any
// lamports accumulated on the owner account to the owner wallet.
func (s *Server) CloseOwnerAccount(ctx context.Context, owner *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "CloseOwnerAccount")
	defer tracer.End()

	if _, err := s.getActiveRegistryRecord(ctx); err != nil {
		tracer.OnError(err)
		return err
	}

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	record, err := s.data.GetOwnerLedger(ctx, base58.Encode(ownerAccount))
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if !record.EligibleToClose() {
		return ErrOwnerNotEligibleToClose
	}

	lamports, err := s.getLamports(ctx, base58.Encode(ownerAccount))
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if lamports > 0 {
		ownerAuthority, err := common.DeriveOwnerAccountAuthority(s.program, owner)
		if err != nil {
			tracer.OnError(err)
			return err
		}

		err = s.chain.Invoke(
			ctx,
			[]solana.Instruction{system.Transfer(ownerAccount, owner.PublicKey().ToBytes(), lamports)},
			ownerAuthority,
		)
		if err != nil {
			tracer.OnError(err)
			return err
		}
	}

	err = s.data.DeleteOwnerLedger(ctx, base58.Encode(ownerAccount))
	tracer.OnError(err)
	return err
}

// CreateSubAccount adds a sub-account under an owner and funds it to the
// rent floor from the owner account.
func (s *Server) CreateSubAccount(ctx context.Context, owner *common.Account, nonce uint32) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "CreateSubAccount")
	defer tracer.End()
	tracer.AddAttribute("nonce", nonce)

	if _, err := s.getActiveRegistryRecord(ctx); err != nil {
		tracer.OnError(err)
		return err
	}

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	record, err := s.data.GetOwnerLedger(ctx, base58.Encode(ownerAccount))
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := record.AddSubAccount(nonce); err != nil {
		tracer.OnError(err)
		return err
	}

	subAccount, _, err := common.GetSubAccountAddress(s.program, ownerAccount, nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	rentFloor, err := s.chain.GetRentExemptMinimum(ctx, 0)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	ownerAuthority, err := common.DeriveOwnerAccountAuthority(s.program, owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	err = s.chain.Invoke(
		ctx,
		[]solana.Instruction{system.Transfer(ownerAccount, subAccount, rentFloor)},
		ownerAuthority,
	)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method":      "CreateSubAccount",
		"owner":       owner.PublicKey().ToBase58(),
		"sub_account": base58.Encode(subAccount),
	}).Info("created sub-account")

	err = s.data.SaveOwnerLedger(ctx, record)
	tracer.OnError(err)
	return err
}

// Withdraw moves part of a sub-account's spendable balance to the owner
// wallet. The sub-account must be debt free and retain its rent floor.
func (s *Server) Withdraw(ctx context.Context, owner *common.Account, nonce uint32, amount uint64) error {
	return s.withdraw(ctx, owner, nonce, pointer.Uint64(amount))
}

// WithdrawAll drains a sub-account entirely and removes it from the owner
// ledger. The sub-account must be debt free.
func (s *Server) WithdrawAll(ctx context.Context, owner *common.Account, nonce uint32) error {
	return s.withdraw(ctx, owner, nonce, nil)
}

func (s *Server) withdraw(ctx context.Context, owner *common.Account, nonce uint32, amount *uint64) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "withdraw")
	defer tracer.End()
	tracer.AddAttribute("nonce", nonce)

	if _, err := s.getActiveRegistryRecord(ctx); err != nil {
		tracer.OnError(err)
		return err
	}

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	record, err := s.data.GetOwnerLedger(ctx, base58.Encode(ownerAccount))
	if err != nil {
		tracer.OnError(err)
		return err
	}

	dueFee, err := record.GetDueFee(nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if dueFee > 0 {
		return ErrDueFeeNotPaid
	}

	subAccount, _, err := common.GetSubAccountAddress(s.program, ownerAccount, nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	lamports, err := s.getLamports(ctx, base58.Encode(subAccount))
	if err != nil {
		tracer.OnError(err)
		return err
	}

	transferred := lamports
	if amount != nil {
		rentFloor, err := s.chain.GetRentExemptMinimum(ctx, 0)
		if err != nil {
			tracer.OnError(err)
			return err
		}

		var spendable uint64
		if lamports > rentFloor {
			spendable = lamports - rentFloor
		}
		if *amount > spendable {
			return ErrBalanceInsufficient
		}
		transferred = *amount
	}

	if transferred > 0 {
		subAuthority, err := common.DeriveSubAccountAuthority(s.program, ownerAccount, nonce)
		if err != nil {
			tracer.OnError(err)
			return err
		}

		err = s.chain.Invoke(
			ctx,
			[]solana.Instruction{system.Transfer(subAccount, owner.PublicKey().ToBytes(), transferred)},
			subAuthority,
		)
		if err != nil {
			tracer.OnError(err)
			return err
		}
	}

	if amount == nil {
		if err := record.RemoveSubAccount(nonce); err != nil {
			tracer.OnError(err)
			return err
		}
		if err := s.data.SaveOwnerLedger(ctx, record); err != nil {
			tracer.OnError(err)
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"method":      "withdraw",
		"sub_account": base58.Encode(subAccount),
		"amount":      transferred,
	}).Info("withdrew from sub-account")
	return nil
}

// getSubAccount resolves the sub-account address and signing capability for
// an owner and nonce pair, requiring the sub-account to be on the ledger.
func (s *Server) getSubAccount(ctx context.Context, owner *common.Account, nonce uint32) (ed25519.PublicKey, *common.DerivedAuthority, error) {
	record, ownerAccount, err := s.getOwnerLedgerRecord(ctx, owner)
	if err != nil {
		return nil, nil, err
	}

	if !record.HasSubAccount(nonce) {
		return nil, nil, ledger.ErrSubAccountNotFound
	}

	subAccount, _, err := common.GetSubAccountAddress(s.program, ownerAccount, nonce)
	if err != nil {
		return nil, nil, err
	}

	subAuthority, err := common.DeriveSubAccountAuthority(s.program, ownerAccount, nonce)
	if err != nil {
		return nil, nil, err
	}

	return subAccount, subAuthority, nil
}

// getLamports reads the committed lamport balance of an account, treating a
// missing account as empty.
func (s *Server) getLamports(ctx context.Context, address string) (uint64, error) {
	info, err := s.chain.GetAccountInfo(ctx, address)
	if err == chain.ErrAccountNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Lamports, nil
}
