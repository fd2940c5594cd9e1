package fee

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("fee registry not found")
	ErrStaleVersion = errors.New("fee registry version is stale")
)

type Store interface {
	// Save creates or updates the fee registry record
	Save(ctx context.Context, record *Record) error

	// Get gets the fee registry record at an address
	Get(ctx context.Context, address string) (*Record, error)
}
