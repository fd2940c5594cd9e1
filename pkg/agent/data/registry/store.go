package registry

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("authorization registry not found")
	ErrStaleVersion = errors.New("authorization registry version is stale")
)

type Store interface {
	// Save creates or updates the authorization registry record
	Save(ctx context.Context, record *Record) error

	// Get gets the authorization registry record at an address
	Get(ctx context.Context, address string) (*Record, error)
}
