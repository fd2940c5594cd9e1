package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
	pgutil "github.com/easycoin-labs/agent-server/pkg/database/postgres"
)

const (
	tableName          = "agentserver__core_feeregistry"
	collectorTableName = "agentserver__core_feeregistrycollector"
)

type model struct {
	Id                 sql.NullInt64 `db:"id"`
	Address            string        `db:"address"`
	SwapFeeNumerator   uint64        `db:"swap_fee_numerator"`
	SwapFeeDenominator uint64        `db:"swap_fee_denominator"`
	Version            uint64        `db:"version"`
	CreatedAt          time.Time     `db:"created_at"`
}

type collectorModel struct {
	Id        sql.NullInt64 `db:"id"`
	Address   string        `db:"address"`
	Collector string        `db:"collector"`
}

func toModel(obj *fee.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:                 sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Address:            obj.Address,
		SwapFeeNumerator:   obj.Fees[fee.ParameterSwapFeeNumerator],
		SwapFeeDenominator: obj.Fees[fee.ParameterSwapFeeDenominator],
		Version:            obj.Version,
		CreatedAt:          obj.CreatedAt,
	}, nil
}

func fromModel(m *model, collectors []*collectorModel) *fee.Record {
	record := &fee.Record{
		Id:        uint64(m.Id.Int64),
		Address:   m.Address,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
	record.Fees[fee.ParameterSwapFeeNumerator] = m.SwapFeeNumerator
	record.Fees[fee.ParameterSwapFeeDenominator] = m.SwapFeeDenominator

	for _, collector := range collectors {
		record.Collectors = append(record.Collectors, collector.Collector)
	}

	return record
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB, collectors []string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, swap_fee_numerator, swap_fee_denominator, version, created_at)
			VALUES ($1, $2, $3, $4 + 1, $5)

			ON CONFLICT (address)
			DO UPDATE
				SET swap_fee_numerator = $2, swap_fee_denominator = $3, version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.address = $1 AND ` + tableName + `.version = $4

			RETURNING
				id, address, swap_fee_numerator, swap_fee_denominator, version, created_at`

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.SwapFeeNumerator,
			m.SwapFeeDenominator,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, fee.ErrStaleVersion)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM `+collectorTableName+` WHERE address = $1`, m.Address)
		if err != nil {
			return err
		}

		for _, collector := range collectors {
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO `+collectorTableName+` (address, collector) VALUES ($1, $2)`,
				m.Address,
				collector,
			)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, []*collectorModel, error) {
	res := &model{}

	query := `SELECT id, address, swap_fee_numerator, swap_fee_denominator, version, created_at
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, nil, pgutil.CheckNoRows(err, fee.ErrNotFound)
	}

	collectors := []*collectorModel{}

	query = `SELECT id, address, collector
		FROM ` + collectorTableName + `
		WHERE address = $1
		ORDER BY id ASC`

	err = db.SelectContext(ctx, &collectors, query, address)
	if err != nil && !pgutil.IsNoRows(err) {
		return nil, nil, err
	}

	return res, collectors, nil
}
