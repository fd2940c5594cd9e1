package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	pg "github.com/easycoin-labs/agent-server/pkg/database/postgres"
	"github.com/easycoin-labs/agent-server/pkg/database/query"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry"

	fee_memory_client "github.com/easycoin-labs/agent-server/pkg/agent/data/fee/memory"
	ledger_memory_client "github.com/easycoin-labs/agent-server/pkg/agent/data/ledger/memory"
	pause_memory_client "github.com/easycoin-labs/agent-server/pkg/agent/data/pause/memory"
	registry_memory_client "github.com/easycoin-labs/agent-server/pkg/agent/data/registry/memory"

	fee_postgres_client "github.com/easycoin-labs/agent-server/pkg/agent/data/fee/postgres"
	ledger_postgres_client "github.com/easycoin-labs/agent-server/pkg/agent/data/ledger/postgres"
	pause_postgres_client "github.com/easycoin-labs/agent-server/pkg/agent/data/pause/postgres"
	registry_postgres_client "github.com/easycoin-labs/agent-server/pkg/agent/data/registry/postgres"
)

// DatabaseData is the system data layer. It is a flattened view over the
// individual record stores, so callers deal with one provider instead of a
// bag of store interfaces.
type DatabaseData interface {
	// Authorization Registry
	// --------------------------------------------------------------------------------
	SaveAuthorizationRegistry(ctx context.Context, record *registry.Record) error
	GetAuthorizationRegistry(ctx context.Context, address string) (*registry.Record, error)

	// Pause Registry
	// --------------------------------------------------------------------------------
	SavePauseRegistry(ctx context.Context, record *pause.Record) error
	GetPauseRegistry(ctx context.Context, address string) (*pause.Record, error)

	// Fee Registry
	// --------------------------------------------------------------------------------
	SaveFeeRegistry(ctx context.Context, record *fee.Record) error
	GetFeeRegistry(ctx context.Context, address string) (*fee.Record, error)

	// Owner Ledger
	// --------------------------------------------------------------------------------
	SaveOwnerLedger(ctx context.Context, record *ledger.Record) error
	GetOwnerLedger(ctx context.Context, owner string) (*ledger.Record, error)
	DeleteOwnerLedger(ctx context.Context, owner string) error
	GetOwnerLedgersWithDueFee(ctx context.Context, minDueFee uint64, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*ledger.Record, error)

	// ExecuteInTx executes fn with a single DB transaction that is scoped to the call.
	// This enables more complex transactions that can span many calls across the provider.
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

type DatabaseProvider struct {
	registries registry.Store
	pauses     pause.Store
	fees       fee.Store
	ledgers    ledger.Store

	db *sqlx.DB
}

func NewDatabaseProvider(dbConfig *pg.Config) (DatabaseData, error) {
	db, err := pg.NewWithUsernameAndPassword(
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		fmt.Sprint(dbConfig.Port),
		dbConfig.DbName,
	)
	if err != nil {
		return nil, err
	}

	if dbConfig.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(dbConfig.MaxOpenConnections)
	}
	if dbConfig.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(dbConfig.MaxIdleConnections)
	}
	db.SetConnMaxIdleTime(time.Hour)
	db.SetConnMaxLifetime(time.Hour)

	return &DatabaseProvider{
		registries: registry_postgres_client.New(db),
		pauses:     pause_postgres_client.New(db),
		fees:       fee_postgres_client.New(db),
		ledgers:    ledger_postgres_client.New(db),

		db: sqlx.NewDb(db, "pgx"),
	}, nil
}

func NewTestDatabaseProvider() DatabaseData {
	return &DatabaseProvider{
		registries: registry_memory_client.New(),
		pauses:     pause_memory_client.New(),
		fees:       fee_memory_client.New(),
		ledgers:    ledger_memory_client.New(),
	}
}

func (dp *DatabaseProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if dp.db == nil {
		return fn(ctx)
	}

	return pg.ExecuteTxWithinCtx(ctx, dp.db, isolation, fn)
}

// Authorization Registry
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SaveAuthorizationRegistry(ctx context.Context, record *registry.Record) error {
	return dp.registries.Save(ctx, record)
}
func (dp *DatabaseProvider) GetAuthorizationRegistry(ctx context.Context, address string) (*registry.Record, error) {
	return dp.registries.Get(ctx, address)
}

// Pause Registry
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SavePauseRegistry(ctx context.Context, record *pause.Record) error {
	return dp.pauses.Save(ctx, record)
}
func (dp *DatabaseProvider) GetPauseRegistry(ctx context.Context, address string) (*pause.Record, error) {
	return dp.pauses.Get(ctx, address)
}

// Fee Registry
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SaveFeeRegistry(ctx context.Context, record *fee.Record) error {
	return dp.fees.Save(ctx, record)
}
func (dp *DatabaseProvider) GetFeeRegistry(ctx context.Context, address string) (*fee.Record, error) {
	return dp.fees.Get(ctx, address)
}

// Owner Ledger
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SaveOwnerLedger(ctx context.Context, record *ledger.Record) error {
	return dp.ledgers.Save(ctx, record)
}
func (dp *DatabaseProvider) GetOwnerLedger(ctx context.Context, owner string) (*ledger.Record, error) {
	return dp.ledgers.Get(ctx, owner)
}
func (dp *DatabaseProvider) DeleteOwnerLedger(ctx context.Context, owner string) error {
	return dp.ledgers.Delete(ctx, owner)
}
func (dp *DatabaseProvider) GetOwnerLedgersWithDueFee(ctx context.Context, minDueFee uint64, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*ledger.Record, error) {
	return dp.ledgers.GetAllWithDueFee(ctx, minDueFee, cursor, limit, direction)
}
