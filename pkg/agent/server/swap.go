package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"math"
	"math/bits"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/jupiter"
	"github.com/easycoin-labs/agent-server/pkg/solana/pumpfun"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

// Buys shave one percent off the spent lamports before pricing against the
// curve, matching the venue's fee.
const pumpfunFeeDivisor = 100

// A buy is allowed to cost slightly more than the declared lamport amount
// to absorb curve movement between pricing and execution.
const pumpfunMaxSolCostPadding = 5

// balanceFunc reads the monitored balance a swap's fee is charged against.
type balanceFunc func(ctx context.Context) (uint64, error)

// SwapOnJupiter executes an operator-built Jupiter route on behalf of a
// sub-account and accrues the swap fee against it.
func (s *Server) SwapOnJupiter(ctx context.Context, caller, owner *common.Account, nonce uint32, ixn solana.Instruction) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "SwapOnJupiter")
	defer tracer.End()
	tracer.AddAttribute("nonce", nonce)

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	record, subAccount, err := s.prepareSwap(ctx, caller, owner, nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	routeType, err := jupiter.GetRouteType(ixn)
	if err != nil || routeType != jupiter.RouteTypeRoute {
		return ErrUnrecognizedRoute
	}
	if len(ixn.Accounts) < jupiter.RouteMinAccounts {
		return ErrUnrecognizedRoute
	}

	if !bytes.Equal(ixn.Accounts[jupiter.RouteUserTransferAuthorityIndex].PublicKey, subAccount) {
		return ErrUserAccountInvalid
	}

	sourceAddress := ixn.Accounts[jupiter.RouteSourceTokenAccountIndex].PublicKey
	source, err := s.chain.GetTokenAccountInfo(ctx, base58.Encode(sourceAddress))
	if err != nil || !bytes.Equal(source.Owner, subAccount) {
		return ErrSourceAccountInvalid
	}

	destinationAddress := ixn.Accounts[jupiter.RouteUserDestinationAccountIndex].PublicKey
	destination, err := s.chain.GetTokenAccountInfo(ctx, base58.Encode(destinationAddress))
	if err != nil || !bytes.Equal(destination.Owner, subAccount) {
		return ErrDestinationAccountInvalid
	}

	if !bytes.Equal(ixn.Accounts[jupiter.RouteDestinationTokenAccountIndex].PublicKey, destinationAddress) {
		return ErrDestinationAccountInvalid
	}

	// Exactly one side of the route must be wrapped SOL. Its token balance
	// is the value the fee is charged on.
	sourceIsNative := token.IsNativeMint(source.Mint)
	destinationIsNative := token.IsNativeMint(destination.Mint)
	if sourceIsNative == destinationIsNative {
		return ErrNoEligibleAccount
	}

	monitoredAddress := base58.Encode(destinationAddress)
	if sourceIsNative {
		monitoredAddress = base58.Encode(sourceAddress)
	}

	ixn.Accounts = markSigner(ixn.Accounts, jupiter.RouteUserTransferAuthorityIndex)

	return s.executeSwap(ctx, record, ownerAccount, nonce, subAccount, ixn, func(ctx context.Context) (uint64, error) {
		return s.getTokenBalance(ctx, monitoredAddress)
	})
}

// SwapOnPumpfun executes an operator-built pump.fun trade on behalf of a
// sub-account and accrues the swap fee against it. The instruction is
// forwarded exactly as built.
func (s *Server) SwapOnPumpfun(ctx context.Context, caller, owner *common.Account, nonce uint32, ixn solana.Instruction) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "SwapOnPumpfun")
	defer tracer.End()
	tracer.AddAttribute("nonce", nonce)

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	record, subAccount, err := s.prepareSwap(ctx, caller, owner, nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := s.validatePumpfunTrade(ctx, ixn, subAccount); err != nil {
		return err
	}

	ixn.Accounts = markSigner(ixn.Accounts, pumpfun.TradeUserAccountIndex)

	return s.executeSwap(ctx, record, ownerAccount, nonce, subAccount, ixn, func(ctx context.Context) (uint64, error) {
		return s.getLamports(ctx, base58.Encode(subAccount))
	})
}

// SwapOnPumpfunCurve executes a pump.fun trade priced server side against
// the bonding curve. For a buy, the instruction's arguments carry the
// lamports to spend and the minimum acceptable token output; the executed
// token amount is recomputed from the curve state. A sell is forwarded
// exactly as built.
func (s *Server) SwapOnPumpfunCurve(ctx context.Context, caller, owner *common.Account, nonce uint32, ixn solana.Instruction) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "SwapOnPumpfunCurve")
	defer tracer.End()
	tracer.AddAttribute("nonce", nonce)

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	record, subAccount, err := s.prepareSwap(ctx, caller, owner, nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := s.validatePumpfunTrade(ctx, ixn, subAccount); err != nil {
		return err
	}

	tradeType, err := pumpfun.GetTradeType(ixn)
	if err != nil {
		return ErrUnrecognizedRoute
	}

	if tradeType == pumpfun.TradeTypeBuy {
		data, err := s.priceBuyAgainstCurve(ctx, ixn)
		if err != nil {
			tracer.OnError(err)
			return err
		}
		ixn.Data = data
	}

	ixn.Accounts = markSigner(ixn.Accounts, pumpfun.TradeUserAccountIndex)

	return s.executeSwap(ctx, record, ownerAccount, nonce, subAccount, ixn, func(ctx context.Context) (uint64, error) {
		return s.getLamports(ctx, base58.Encode(subAccount))
	})
}

// prepareSwap performs the authorization and ledger checks shared by every
// swap entry point.
func (s *Server) prepareSwap(ctx context.Context, caller, owner *common.Account, nonce uint32) (*ledger.Record, ed25519.PublicKey, error) {
	registryRecord, err := s.getActiveRegistryRecord(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireOperator(registryRecord, caller); err != nil {
		return nil, nil, err
	}

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

	return record, subAccount, nil
}

// validatePumpfunTrade checks an operator-built pump.fun trade instruction
// against the sub-account it is executed for.
func (s *Server) validatePumpfunTrade(ctx context.Context, ixn solana.Instruction, subAccount ed25519.PublicKey) error {
	if _, err := pumpfun.GetTradeType(ixn); err != nil {
		return ErrUnrecognizedRoute
	}
	if len(ixn.Accounts) < pumpfun.TradeMinAccounts {
		return ErrUnrecognizedRoute
	}

	if !bytes.Equal(ixn.Accounts[pumpfun.TradeUserAccountIndex].PublicKey, subAccount) {
		return ErrUserAccountInvalid
	}

	userTokenAccountAddress := ixn.Accounts[pumpfun.TradeUserTokenAccountIndex].PublicKey
	userTokenAccount, err := s.chain.GetTokenAccountInfo(ctx, base58.Encode(userTokenAccountAddress))
	if err != nil || !bytes.Equal(userTokenAccount.Owner, subAccount) {
		return ErrSourceAccountInvalid
	}

	return nil
}

// priceBuyAgainstCurve rewrites a buy instruction's arguments using the
// committed bonding curve state. The incoming arguments carry the lamports
// to spend and the minimum acceptable token output.
func (s *Server) priceBuyAgainstCurve(ctx context.Context, ixn solana.Instruction) ([]byte, error) {
	args, err := pumpfun.GetTradeArgs(ixn.Data)
	if err != nil {
		return nil, ErrUnrecognizedRoute
	}
	solAmount := args.SolThreshold
	minTokenOutput := args.Amount

	curveInfo, err := s.chain.GetAccountInfo(ctx, base58.Encode(ixn.Accounts[pumpfun.TradeBondingCurveIndex].PublicKey))
	if err != nil {
		return nil, ErrUnrecognizedRoute
	}

	var curve pumpfun.BondingCurve
	if !curve.Unmarshal(curveInfo.Data) {
		return nil, ErrUnrecognizedRoute
	}

	amount, err := computeBuyAmount(&curve, solAmount)
	if err != nil {
		return nil, err
	}
	if amount < minTokenOutput {
		return nil, ErrSlippageExceeded
	}

	if solAmount > math.MaxUint64-pumpfunMaxSolCostPadding {
		return nil, ErrAmountOverflow
	}

	data := make([]byte, len(ixn.Data))
	copy(data, ixn.Data)
	err = pumpfun.PutTradeArgs(data, &pumpfun.TradeInstructionArgs{
		Amount:       amount,
		SolThreshold: solAmount + pumpfunMaxSolCostPadding,
	})
	if err != nil {
		return nil, ErrUnrecognizedRoute
	}
	return data, nil
}

// computeBuyAmount prices a buy against the constant product curve with
// 128-bit intermediate math and floor division. The denominator is the sum
// of the virtual sol reserves and the spent lamports, which can itself
// exceed 64 bits.
func computeBuyAmount(curve *pumpfun.BondingCurve, solAmount uint64) (uint64, error) {
	x := solAmount - solAmount/pumpfunFeeDivisor

	denominator, carry := bits.Add64(curve.VirtualSolReserves, x, 0)
	if carry == 0 && denominator == 0 {
		return 0, ErrAmountOverflow
	}

	hi, lo := bits.Mul64(curve.VirtualTokenReserves, x)
	if carry != 0 {
		return divideByWideDenominator(hi, lo, denominator), nil
	}

	if hi >= denominator {
		return 0, ErrAmountOverflow
	}

	quo, _ := bits.Div64(hi, lo, denominator)
	return quo, nil
}

// divideByWideDenominator computes floor(n / (1<<64 + d)) for the 128-bit
// numerator n = hi<<64 | lo using restoring long division. The quotient
// always fits in 64 bits because the divisor exceeds 1<<64.
func divideByWideDenominator(hi, lo, d uint64) uint64 {
	var quo, remHi, remLo uint64
	for i := 127; i >= 0; i-- {
		remHi = remHi<<1 | remLo>>63
		remLo <<= 1
		if i >= 64 {
			remLo |= hi >> (i - 64) & 1
		} else {
			remLo |= lo >> i & 1
		}

		if remHi > 1 || (remHi == 1 && remLo >= d) {
			var borrow uint64
			remLo, borrow = bits.Sub64(remLo, d, 0)
			remHi = remHi - 1 - borrow
			if i < 64 {
				quo |= 1 << i
			}
		}
	}
	return quo
}

// executeSwap runs the shared swap pipeline: snapshot the monitored
// balance, invoke, resnapshot, accrue the fee on the delta and enforce the
// sub-account stays solvent for its entire debt.
func (s *Server) executeSwap(
	ctx context.Context,
	record *ledger.Record,
	ownerAccount ed25519.PublicKey,
	nonce uint32,
	subAccount ed25519.PublicKey,
	ixn solana.Instruction,
	monitored balanceFunc,
) error {
	feeRecord, err := s.getFeeRecord(ctx)
	if err != nil {
		return err
	}

	before, err := monitored(ctx)
	if err != nil {
		return err
	}

	subAuthority, err := common.DeriveSubAccountAuthority(s.program, ownerAccount, nonce)
	if err != nil {
		return err
	}

	if err := s.chain.Invoke(ctx, []solana.Instruction{ixn}, subAuthority); err != nil {
		return err
	}

	// The swap is committed from here on. If the fee owed for it cannot be
	// determined or accrued, the sub-account is frozen behind a maximum due
	// fee instead of walking away with an uncharged swap.
	after, err := monitored(ctx)
	if err != nil {
		return s.freezeSubAccount(ctx, record, nonce, subAccount, err)
	}

	swapFee, err := feeRecord.ComputeSwapFee(before, after)
	if err != nil {
		return s.freezeSubAccount(ctx, record, nonce, subAccount, err)
	}

	if err := record.AddDueFee(nonce, swapFee); err != nil {
		return s.freezeSubAccount(ctx, record, nonce, subAccount, err)
	}
	if err := s.data.SaveOwnerLedger(ctx, record); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method":      "executeSwap",
		"sub_account": base58.Encode(subAccount),
		"before":      before,
		"after":       after,
		"swap_fee":    swapFee,
	}).Info("executed swap")

	// The swap has settled on chain at this point; an insolvent result is
	// surfaced to the operator with the accrued debt already recorded.
	dueFee, err := record.GetDueFee(nonce)
	if err != nil {
		return err
	}

	lamports, err := s.getLamports(ctx, base58.Encode(subAccount))
	if err != nil {
		return err
	}

	rentFloor, err := s.chain.GetRentExemptMinimum(ctx, 0)
	if err != nil {
		return err
	}

	if lamports < rentFloor || lamports-rentFloor < dueFee {
		return ErrBalanceInsufficient
	}
	return nil
}

// freezeSubAccount pins a sub-account's due fee at the maximum when the fee
// owed for a settled swap cannot be determined or recorded. The debt blocks
// withdrawals until an operator reconciles the sub-account. The original
// cause is returned to the caller.
func (s *Server) freezeSubAccount(ctx context.Context, record *ledger.Record, nonce uint32, subAccount ed25519.PublicKey, cause error) error {
	dueFee, err := record.GetDueFee(nonce)
	if err == nil {
		err = record.AddDueFee(nonce, math.MaxUint64-dueFee)
	}
	if err == nil {
		err = s.data.SaveOwnerLedger(ctx, record)
	}

	log := s.log.WithFields(logrus.Fields{
		"method":      "executeSwap",
		"sub_account": base58.Encode(subAccount),
	})
	if err != nil {
		log.WithError(err).Warn("failed to record maximum due fee for settled swap")
	} else {
		log.WithError(cause).Warn("recorded maximum due fee for swap with undetermined fee")
	}
	return cause
}

// getTokenBalance reads the committed token amount of an account. A missing
// account is an error; every monitored account is validated to exist before
// the swap, so a disappearance afterwards means the route destroyed it.
func (s *Server) getTokenBalance(ctx context.Context, address string) (uint64, error) {
	account, err := s.chain.GetTokenAccountInfo(ctx, address)
	if err != nil {
		return 0, err
	}
	return account.Amount, nil
}

// markSigner returns a copy of the account list with the account at index
// marked as a required signer.
func markSigner(accounts []solana.AccountMeta, index int) []solana.AccountMeta {
	marked := make([]solana.AccountMeta, len(accounts))
	copy(marked, accounts)
	marked[index].IsSigner = true
	return marked
}
