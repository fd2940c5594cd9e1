package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/database/query"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) ledger.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *ledger.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	err = obj.dbSave(ctx, s.db, record.SubAccounts)
	if err != nil {
		return err
	}

	res := fromModel(obj, nil)
	res.SubAccounts = record.SubAccounts
	res.CopyTo(record)

	return nil
}

func (s *store) Get(ctx context.Context, owner string) (*ledger.Record, error) {
	obj, subAccounts, err := dbGet(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	return fromModel(obj, subAccounts), nil
}

func (s *store) Delete(ctx context.Context, owner string) error {
	return dbDelete(ctx, s.db, owner)
}

func (s *store) GetAllWithDueFee(ctx context.Context, minDueFee uint64, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*ledger.Record, error) {
	models, err := dbGetAllWithDueFee(ctx, s.db, minDueFee, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*ledger.Record, len(models))
	for i, m := range models {
		subAccounts, err := dbGetSubAccounts(ctx, s.db, m.Owner)
		if err != nil {
			return nil, err
		}
		res[i] = fromModel(m, subAccounts)
	}
	return res, nil
}
