package server

import (
	"context"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
)

// Initialize creates the authorization registry with the configured default
// authority. Anyone may pay for initialization; the operation is gated by
// the registry not yet existing.
func (s *Server) Initialize(ctx context.Context) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "Initialize")
	defer tracer.End()

	_, err := s.getRegistryRecord(ctx)
	if err == nil {
		return ErrAlreadyInitialized
	}
	if err != ErrNotInitialized {
		tracer.OnError(err)
		return err
	}

	address, _, err := common.GetAuthorizationRegistryAddress(s.program)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	record := &registry.Record{
		Address:   base58.Encode(address),
		Status:    registry.StatusActive,
		Authority: s.defaultAuthority.PublicKey().ToBase58(),
		CreatedAt: time.Now(),
	}

	s.log.WithFields(logrus.Fields{
		"method":    "Initialize",
		"authority": record.Authority,
	}).Info("initializing authorization registry")

	err = s.data.SaveAuthorizationRegistry(ctx, record)
	tracer.OnError(err)
	return err
}

// TransferAuthority hands the registry authority to a new identity.
func (s *Server) TransferAuthority(ctx context.Context, caller, newAuthority *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "TransferAuthority")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}
	if !record.IsActive() {
		return ErrInvalidStatus
	}

	record.Authority = newAuthority.PublicKey().ToBase58()

	s.log.WithFields(logrus.Fields{
		"method":    "TransferAuthority",
		"authority": record.Authority,
	}).Info("transferring registry authority")

	err = s.data.SaveAuthorizationRegistry(ctx, record)
	tracer.OnError(err)
	return err
}

// AddOperators adds identities to the operator allowlist. Re-adding a
// present operator is a no-op.
func (s *Server) AddOperators(ctx context.Context, caller *common.Account, operators ...*common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "AddOperators")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}
	if !record.IsActive() {
		return ErrInvalidStatus
	}

	for _, operator := range operators {
		if err := record.AddOperator(operator.PublicKey().ToBase58()); err != nil {
			tracer.OnError(err)
			return err
		}
	}

	err = s.data.SaveAuthorizationRegistry(ctx, record)
	tracer.OnError(err)
	return err
}

// RemoveOperators removes identities from the operator allowlist. Removing
// an absent operator is a no-op.
func (s *Server) RemoveOperators(ctx context.Context, caller *common.Account, operators ...*common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "RemoveOperators")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}
	if !record.IsActive() {
		return ErrInvalidStatus
	}

	for _, operator := range operators {
		record.RemoveOperator(operator.PublicKey().ToBase58())
	}

	err = s.data.SaveAuthorizationRegistry(ctx, record)
	tracer.OnError(err)
	return err
}

// InitializePause creates the pause registry with the designated pauser.
func (s *Server) InitializePause(ctx context.Context, caller, pauser *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "InitializePause")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}

	if _, err := s.getPauseRecord(ctx); err == nil {
		return ErrAlreadyInitialized
	} else if err != ErrNotInitialized {
		tracer.OnError(err)
		return err
	}

	address, _, err := common.GetPauseRegistryAddress(s.program)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	err = s.data.SavePauseRegistry(ctx, &pause.Record{
		Address:   base58.Encode(address),
		Pauser:    pauser.PublicKey().ToBase58(),
		CreatedAt: time.Now(),
	})
	tracer.OnError(err)
	return err
}

// SetPauser replaces the designated pauser.
func (s *Server) SetPauser(ctx context.Context, caller, pauser *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "SetPauser")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	if err := s.requireAuthority(record, caller); err != nil {
		return err
	}
	if !record.IsActive() {
		return ErrInvalidStatus
	}

	pauseRecord, err := s.getPauseRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	pauseRecord.Pauser = pauser.PublicKey().ToBase58()

	err = s.data.SavePauseRegistry(ctx, pauseRecord)
	tracer.OnError(err)
	return err
}

// Pause halts all fee-sensitive and swap-sensitive operations.
func (s *Server) Pause(ctx context.Context, caller *common.Account) error {
	return s.setStatus(ctx, caller, registry.StatusPaused)
}

// Unpause resumes normal operation.
func (s *Server) Unpause(ctx context.Context, caller *common.Account) error {
	return s.setStatus(ctx, caller, registry.StatusActive)
}

func (s *Server) setStatus(ctx context.Context, caller *common.Account, status registry.Status) error {
	tracer := metrics.TraceMethodCall(ctx, "agent/server", "setStatus")
	defer tracer.End()

	record, err := s.getRegistryRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	pauseRecord, err := s.getPauseRecord(ctx)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	callerAddress := caller.PublicKey().ToBase58()
	if pauseRecord.Pauser != callerAddress && record.Authority != callerAddress {
		return ErrNotAuthorized
	}

	if err := record.SetStatus(status); err != nil {
		return ErrInvalidStatus
	}

	s.log.WithFields(logrus.Fields{
		"method": "setStatus",
		"status": status.String(),
	}).Info("updating registry status")

	err = s.data.SaveAuthorizationRegistry(ctx, record)
	tracer.OnError(err)
	return err
}
