package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) fee.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *fee.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	err = obj.dbSave(ctx, s.db, record.Collectors)
	if err != nil {
		return err
	}

	res := fromModel(obj, nil)
	res.Collectors = record.Collectors
	res.CopyTo(record)

	return nil
}

func (s *store) Get(ctx context.Context, address string) (*fee.Record, error) {
	obj, collectors, err := dbGet(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(obj, collectors), nil
}
