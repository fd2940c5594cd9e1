package ledger

import (
	"context"
	"errors"

	"github.com/easycoin-labs/agent-server/pkg/database/query"
)

var (
	ErrNotFound     = errors.New("owner ledger record not found")
	ErrStaleVersion = errors.New("owner ledger record version is stale")
)

type Store interface {
	// Save creates or updates an owner ledger record
	Save(ctx context.Context, record *Record) error

	// Get gets an owner ledger record by the owner account address
	Get(ctx context.Context, owner string) (*Record, error)

	// Delete removes an owner ledger record. Emptiness is the caller's
	// responsibility to check.
	Delete(ctx context.Context, owner string) error

	// GetAllWithDueFee gets owner ledger records having at least one
	// sub-account owing minDueFee or more
	GetAllWithDueFee(ctx context.Context, minDueFee uint64, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)
}
