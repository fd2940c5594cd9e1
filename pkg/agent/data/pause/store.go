package pause

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("pause registry not found")
	ErrStaleVersion = errors.New("pause registry version is stale")
)

type Store interface {
	// Save creates or updates the pause registry record
	Save(ctx context.Context, record *Record) error

	// Get gets the pause registry record at an address
	Get(ctx context.Context, address string) (*Record, error)
}
