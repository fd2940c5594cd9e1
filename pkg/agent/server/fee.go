package server

import (
	"bytes"
	"context"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	compute_budget "github.com/easycoin-labs/agent-server/pkg/solana/computebudget"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
)

// FeeEntry is a single fee table update.
type FeeEntry struct {
	Parameter fee.Parameter
	Value     uint64
}

// InitializeFee creates the fee registry with the initial swap fee ratio.
func (s *Server) InitializeFee(ctx context.Context, caller *common.Account, numerator, denominator uint64) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "InitializeFee")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}

	if _, err := s.getFeeRecord(ctx); err == nil {
		return ErrAlreadyInitialized
	} else if err != ErrNotInitialized {
		tracer.OnError(err)
		return err
	}

	address, _, err := common.GetFeeRegistryAddress(s.program)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	feeRecord := &fee.Record{
		Address:   base58.Encode(address),
		CreatedAt: time.Now(),
	}
	if err := feeRecord.SetFee(fee.ParameterSwapFeeNumerator, numerator); err != nil {
		return err
	}
	if err := feeRecord.SetFee(fee.ParameterSwapFeeDenominator, denominator); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method":      "InitializeFee",
		"numerator":   numerator,
		"denominator": denominator,
	}).Info("initializing fee registry")

	err = s.data.SaveFeeRegistry(ctx, feeRecord)
	tracer.OnError(err)
	return err
}

// SetFees applies a batch of fee table updates atomically against the
// record. A rejected entry leaves the registry unsaved.
func (s *Server) SetFees(ctx context.Context, caller *common.Account, entries ...FeeEntry) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "SetFees")
	defer tracer.End()

	record, err := s.getActiveRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}

	feeRecord, err := s.getFeeRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	for _, entry := range entries {
		if err := feeRecord.SetFee(entry.Parameter, entry.Value); err != nil {
			tracer.OnError(err)
			return err
		}
	}

	err = s.data.SaveFeeRegistry(ctx, feeRecord)
	tracer.OnError(err)
	return err
}

// AddFeeCollectors adds destinations to the fee collector allowlist.
func (s *Server) AddFeeCollectors(ctx context.Context, caller *common.Account, collectors ...*common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "AddFeeCollectors")
	defer tracer.End()

	record, err := s.getActiveRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}

	feeRecord, err := s.getFeeRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	for _, collector := range collectors {
		if err := feeRecord.AddCollector(collector.PublicKey().ToBase58()); err != nil {
			tracer.OnError(err)
			return err
		}
	}

	err = s.data.SaveFeeRegistry(ctx, feeRecord)
	tracer.OnError(err)
	return err
}

// RemoveFeeCollectors removes destinations from the fee collector allowlist.
func (s *Server) RemoveFeeCollectors(ctx context.Context, caller *common.Account, collectors ...*common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "RemoveFeeCollectors")
	defer tracer.End()

	record, err := s.getActiveRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}

	feeRecord, err := s.getFeeRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	for _, collector := range collectors {
		feeRecord.RemoveCollector(collector.PublicKey().ToBase58())
	}

	err = s.data.SaveFeeRegistry(ctx, feeRecord)
	tracer.OnError(err)
	return err
}

// CollectFeeArgs describes a single fee collection against a sub-account.
type CollectFeeArgs struct {
	// OwnerAccount is the owner account address keying the ledger; Nonce
	// selects the sub-account.
	OwnerAccount string
	Nonce        uint32

	// OnlyTradeFee skips transaction fee reimbursement entirely.
	OnlyTradeFee bool

	// DeclaredInstructions is the prefix of the transaction the operator is
	// collecting reimbursement for. The first two entries must be the
	// compute unit limit and compute unit price directives, in that order.
	DeclaredInstructions []solana.Instruction

	TransactionFeeCollector *common.Account
	TradeFeeCollector       *common.Account
}

// CollectFee settles the accrued due fee on a sub-account, moving the trade
// fee and the declared transaction cost to registered collectors.
func (s *Server) CollectFee(ctx context.Context, caller *common.Account, args *CollectFeeArgs) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "CollectFee")
	defer tracer.End()

	registryRecord, err := s.getActiveRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireOperator(registryRecord, caller); err != nil {
		return err
	}

	feeRecord, err := s.getFeeRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if !feeRecord.HasCollector(args.TransactionFeeCollector.PublicKey().ToBase58()) {
		return ErrFeeCollectorInvalid
	}
	if !feeRecord.HasCollector(args.TradeFeeCollector.PublicKey().ToBase58()) {
		return ErrFeeCollectorInvalid
	}

	ownerAccount, err := base58.Decode(args.OwnerAccount)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	ledgerRecord, err := s.data.GetOwnerLedger(ctx, args.OwnerAccount)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	tradeFee, err := ledgerRecord.GetDueFee(args.Nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	var transactionFee uint64
	if !args.OnlyTradeFee {
		transactionFee, err = s.getDeclaredTransactionFee(args.DeclaredInstructions)
		if err != nil {
			tracer.OnError(err)
			return err
		}
	}

	subAccount, _, err := common.GetSubAccountAddress(s.program, ownerAccount, args.Nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	subAuthority, err := common.DeriveSubAccountAuthority(s.program, ownerAccount, args.Nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	var instructions []solana.Instruction
	if tradeFee > 0 {
		instructions = append(instructions, system.Transfer(
			subAccount,
			args.TradeFeeCollector.PublicKey().ToBytes(),
			tradeFee,
		))
	}
	if transactionFee > 0 {
		instructions = append(instructions, system.Transfer(
			subAccount,
			args.TransactionFeeCollector.PublicKey().ToBytes(),
			transactionFee,
		))
	}

	if len(instructions) > 0 {
		if err := s.chain.Invoke(ctx, instructions, subAuthority); err != nil {
			tracer.OnError(err)
			return err
		}
	}

	if err := ledgerRecord.SubDueFee(args.Nonce, tradeFee); err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.data.SaveOwnerLedger(ctx, ledgerRecord); err != nil {
		tracer.OnError(err)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method":          "CollectFee",
		"sub_account":     base58.Encode(subAccount),
		"trade_fee":       tradeFee,
		"transaction_fee": transactionFee,
	}).Info("collected fee")

	s.bus.Publish(ctx, event.FeeCollected{
		SubAccount:     base58.Encode(subAccount),
		TransactionFee: transactionFee,
		TradeFee:       tradeFee,
	})
	return nil
}

// getDeclaredTransactionFee computes the transaction cost promised by the
// leading compute budget directives of a declared transaction.
func (s *Server) getDeclaredTransactionFee(instructions []solana.Instruction) (uint64, error) {
	if len(instructions) < 2 {
		return 0, ErrMalformedFeeInstructions
	}
	for _, ixn := range instructions[:2] {
		if !bytes.Equal(ixn.Program, compute_budget.ProgramKey) {
			return 0, ErrMalformedFeeInstructions
		}
	}

	computeUnitLimit, err := compute_budget.ParseSetComputeUnitLimitIxnData(instructions[0].Data)
	if err != nil {
		return 0, ErrMalformedFeeInstructions
	}
	computeUnitPrice, err := compute_budget.ParseSetComputeUnitPriceIxnData(instructions[1].Data)
	if err != nil {
		return 0, ErrMalformedFeeInstructions
	}

	return fee.ComputeTransactionFee(computeUnitLimit, computeUnitPrice)
}
