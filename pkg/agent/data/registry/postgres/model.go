package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry"
	pgutil "github.com/easycoin-labs/agent-server/pkg/database/postgres"
)

const (
	tableName         = "agentserver__core_authregistry"
	operatorTableName = "agentserver__core_authregistryoperator"
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Address   string        `db:"address"`
	Status    uint8         `db:"status"`
	Authority string        `db:"authority"`
	Version   uint64        `db:"version"`
	CreatedAt time.Time     `db:"created_at"`
}

type operatorModel struct {
	Id       sql.NullInt64 `db:"id"`
	Address  string        `db:"address"`
	Operator string        `db:"operator"`
}

func toModel(obj *registry.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Address:   obj.Address,
		Status:    uint8(obj.Status),
		Authority: obj.Authority,
		Version:   obj.Version,
		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(m *model, operators []*operatorModel) *registry.Record {
	record := &registry.Record{
		Id:        uint64(m.Id.Int64),
		Address:   m.Address,
		Status:    registry.Status(m.Status),
		Authority: m.Authority,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}

	for _, operator := range operators {
		record.Operators = append(record.Operators, operator.Operator)
	}

	return record
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB, operators []string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, status, authority, version, created_at)
			VALUES ($1, $2, $3, $4 + 1, $5)

			ON CONFLICT (address)
			DO UPDATE
				SET status = $2, authority = $3, version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.address = $1 AND ` + tableName + `.version = $4

			RETURNING
				id, address, status, authority, version, created_at`

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Status,
			m.Authority,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, registry.ErrStaleVersion)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM `+operatorTableName+` WHERE address = $1`, m.Address)
		if err != nil {
			return err
		}

		for _, operator := range operators {
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO `+operatorTableName+` (address, operator) VALUES ($1, $2)`,
				m.Address,
				operator,
			)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, []*operatorModel, error) {
	res := &model{}

	query := `SELECT id, address, status, authority, version, created_at
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, nil, pgutil.CheckNoRows(err, registry.ErrNotFound)
	}

	operators := []*operatorModel{}

	query = `SELECT id, address, operator
		FROM ` + operatorTableName + `
		WHERE address = $1
		ORDER BY id ASC`

	err = db.SelectContext(ctx, &operators, query, address)
	if err != nil && !pgutil.IsNoRows(err) {
		return nil, nil, err
	}

	return res, operators, nil
}
