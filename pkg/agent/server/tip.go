package server

import (
	"context"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
)

// SendTip pays a block builder tip from a sub-account. The destination must
// be owned by the configured tip program.
func (s *Server) SendTip(ctx context.Context, caller, owner *common.Account, nonce uint32, tipAccount *common.Account, amount uint64) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "SendTip")
	defer tracer.End()
	tracer.AddAttribute("amount", amount)

	registryRecord, err := s.getActiveRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireOperator(registryRecord, caller); err != nil {
		return err
	}

	ownerAccount, err := s.getOwnerAccountAddress(owner)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	defer s.lockOwnerAccount(ownerAccount)()

	subAccount, subAuthority, err := s.getSubAccount(ctx, owner, nonce)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	info, err := s.chain.GetAccountInfo(ctx, tipAccount.PublicKey().ToBase58())
	if err != nil {
		return ErrTipAccountInvalid
	}
	if info.Owner != s.tipProgram.PublicKey().ToBase58() {
		return ErrTipAccountInvalid
	}

	err = s.chain.Invoke(
		ctx,
		[]solana.Instruction{system.Transfer(subAccount, tipAccount.PublicKey().ToBytes(), amount)},
		subAuthority,
	)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method":      "SendTip",
		"sub_account": base58.Encode(subAccount),
		"tip_account": tipAccount.PublicKey().ToBase58(),
		"amount":      amount,
	}).Info("sent tip")

	s.bus.Publish(ctx, event.TipSent{
		SubAccount: base58.Encode(subAccount),
		TipAccount: tipAccount.PublicKey().ToBase58(),
		Amount:     amount,
	})
	return nil
}
