package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause"
	pgutil "github.com/easycoin-labs/agent-server/pkg/database/postgres"
)

const (
	tableName = "agentserver__core_pauseregistry"
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Address   string        `db:"address"`
	Pauser    string        `db:"pauser"`
	Version   uint64        `db:"version"`
	CreatedAt time.Time     `db:"created_at"`
}

func toModel(obj *pause.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Address:   obj.Address,
		Pauser:    obj.Pauser,
		Version:   obj.Version,
		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *pause.Record {
	return &pause.Record{
		Id:        uint64(m.Id.Int64),
		Address:   m.Address,
		Pauser:    m.Pauser,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, pauser, version, created_at)
			VALUES ($1, $2, $3 + 1, $4)

			ON CONFLICT (address)
			DO UPDATE
				SET pauser = $2, version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.address = $1 AND ` + tableName + `.version = $3

			RETURNING
				id, address, pauser, version, created_at`

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Pauser,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, pause.ErrStaleVersion)
		}
		return nil
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT id, address, pauser, version, created_at
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, pause.ErrNotFound)
	}
	return res, nil
}
