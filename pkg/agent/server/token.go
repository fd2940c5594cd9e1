package server

import (
	"bytes"
	"context"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/chain"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/event"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
	"github.com/easycoin-labs/agent-server/pkg/solana"
	"github.com/easycoin-labs/agent-server/pkg/solana/system"
	"github.com/easycoin-labs/agent-server/pkg/solana/token"
)

// CreateUserTokenAccount creates the sub-account's associated token account
// for a mint, paying the rent from the sub-account itself. Creation is
// idempotent.
func (s *Server) CreateUserTokenAccount(ctx context.Context, caller, owner *common.Account, nonce uint32, mint *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "CreateUserTokenAccount")
	defer tracer.End()

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

	ixn, tokenAccountAddress, err := token.CreateAssociatedTokenAccountIdempotent(
		subAccount,
		subAccount,
		mint.PublicKey().ToBytes(),
	)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"method":        "CreateUserTokenAccount",
		"sub_account":   base58.Encode(subAccount),
		"token_account": base58.Encode(tokenAccountAddress),
		"mint":          mint.PublicKey().ToBase58(),
	}).Info("creating user token account")

	err = s.chain.Invoke(ctx, []solana.Instruction{ixn}, subAuthority)
	tracer.OnError(err)
	return err
}

// CloseUserTokenAccount closes the sub-account's associated token account
// for a mint, reclaiming the rent into the sub-account. An account that
// does not exist, holds no lamports, or still holds a non-native token
// balance is skipped without error.
func (s *Server) CloseUserTokenAccount(ctx context.Context, caller, owner *common.Account, nonce uint32, mint *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "CloseUserTokenAccount")
	defer tracer.End()

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

	tokenAccountAddress, err := token.GetAssociatedAccount(subAccount, mint.PublicKey().ToBytes())
	if err != nil {
		tracer.OnError(err)
		return err
	}

	info, err := s.chain.GetAccountInfo(ctx, base58.Encode(tokenAccountAddress))
	if err == chain.ErrAccountNotFound {
		return nil
	}
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if info.Lamports == 0 {
		return nil
	}

	if !token.IsNativeMint(mint.PublicKey().ToBytes()) {
		tokenAccount, err := s.chain.GetTokenAccountInfo(ctx, base58.Encode(tokenAccountAddress))
		if err != nil {
			tracer.OnError(err)
			return err
		}
		if tokenAccount.Amount > 0 {
			return nil
		}
	}

	err = s.chain.Invoke(
		ctx,
		[]solana.Instruction{token.CloseAccount(tokenAccountAddress, subAccount, subAccount)},
		subAuthority,
	)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	s.bus.Publish(ctx, event.TokenAccountClosed{
		Account:    base58.Encode(tokenAccountAddress),
		SubAccount: base58.Encode(subAccount),
		Lamports:   info.Lamports,
	})
	return nil
}

// TransferAndSyncNative wraps lamports held by a sub-account into its
// wrapped SOL token account.
func (s *Server) TransferAndSyncNative(ctx context.Context, caller, owner *common.Account, nonce uint32, amount uint64) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "TransferAndSyncNative")
	defer tracer.End()

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

	tokenAccountAddress, err := token.GetAssociatedAccount(subAccount, token.NativeMint)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	tokenAccount, err := s.chain.GetTokenAccountInfo(ctx, base58.Encode(tokenAccountAddress))
	if err != nil {
		tracer.OnError(err)
		return ErrDestinationAccountInvalid
	}
	if !token.IsNativeMint(tokenAccount.Mint) {
		return ErrDestinationAccountInvalid
	}
	if !bytes.Equal(tokenAccount.Owner, subAccount) {
		return ErrDestinationAccountInvalid
	}

	err = s.chain.Invoke(
		ctx,
		[]solana.Instruction{
			system.Transfer(subAccount, tokenAccountAddress, amount),
			token.SyncNative(tokenAccountAddress),
		},
		subAuthority,
	)
	tracer.OnError(err)
	return err
}
