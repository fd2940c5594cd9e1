package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) registry.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *registry.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	err = obj.dbSave(ctx, s.db, record.Operators)
	if err != nil {
		return err
	}

	res := fromModel(obj, nil)
	res.Operators = record.Operators
	res.CopyTo(record)

	return nil
}

func (s *store) Get(ctx context.Context, address string) (*registry.Record, error) {
	obj, operators, err := dbGet(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(obj, operators), nil
}
