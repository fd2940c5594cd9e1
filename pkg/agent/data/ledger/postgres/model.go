package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	pgutil "github.com/easycoin-labs/agent-server/pkg/database/postgres"
	q "github.com/easycoin-labs/agent-server/pkg/database/query"
)

const (
	tableName           = "agentserver__core_ownerledger"
	subAccountTableName = "agentserver__core_ownerledgersubaccount"
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Owner     string        `db:"owner"`
	Version   uint64        `db:"version"`
	CreatedAt time.Time     `db:"created_at"`
}

type subAccountModel struct {
	Id     sql.NullInt64 `db:"id"`
	Owner  string        `db:"owner"`
	Nonce  uint32        `db:"nonce"`
	DueFee uint64        `db:"due_fee"`
}

func toModel(obj *ledger.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Owner:     obj.Owner,
		Version:   obj.Version,
		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(m *model, subAccounts []*subAccountModel) *ledger.Record {
	record := &ledger.Record{
		Id:        uint64(m.Id.Int64),
		Owner:     m.Owner,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}

	for _, subAccount := range subAccounts {
		record.SubAccounts = append(record.SubAccounts, ledger.SubAccount{
			Nonce:  subAccount.Nonce,
			DueFee: subAccount.DueFee,
		})
	}

	return record
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB, subAccounts []ledger.SubAccount) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(owner, version, created_at)
			VALUES ($1, $2 + 1, $3)

			ON CONFLICT (owner)
			DO UPDATE
				SET version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.owner = $1 AND ` + tableName + `.version = $2

			RETURNING
				id, owner, version, created_at`

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Owner,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, ledger.ErrStaleVersion)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM `+subAccountTableName+` WHERE owner = $1`, m.Owner)
		if err != nil {
			return err
		}

		for _, subAccount := range subAccounts {
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO `+subAccountTableName+` (owner, nonce, due_fee) VALUES ($1, $2, $3)`,
				m.Owner,
				subAccount.Nonce,
				subAccount.DueFee,
			)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, owner string) (*model, []*subAccountModel, error) {
	res := &model{}

	query := `SELECT id, owner, version, created_at
		FROM ` + tableName + `
		WHERE owner = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, owner)
	if err != nil {
		return nil, nil, pgutil.CheckNoRows(err, ledger.ErrNotFound)
	}

	subAccounts, err := dbGetSubAccounts(ctx, db, owner)
	if err != nil {
		return nil, nil, err
	}

	return res, subAccounts, nil
}

func dbGetSubAccounts(ctx context.Context, db *sqlx.DB, owner string) ([]*subAccountModel, error) {
	subAccounts := []*subAccountModel{}

	query := `SELECT id, owner, nonce, due_fee
		FROM ` + subAccountTableName + `
		WHERE owner = $1
		ORDER BY id ASC`

	err := db.SelectContext(ctx, &subAccounts, query, owner)
	if err != nil && !pgutil.IsNoRows(err) {
		return nil, err
	}

	return subAccounts, nil
}

func dbDelete(ctx context.Context, db *sqlx.DB, owner string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE owner = $1`, owner)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ledger.ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM `+subAccountTableName+` WHERE owner = $1`, owner)
		return err
	})
}

func dbGetAllWithDueFee(ctx context.Context, db *sqlx.DB, minDueFee uint64, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT id, owner, version, created_at
		FROM ` + tableName + `
		WHERE EXISTS (
			SELECT 1 FROM ` + subAccountTableName + `
			WHERE ` + subAccountTableName + `.owner = ` + tableName + `.owner
				AND due_fee >= $1 AND due_fee > 0
		)`

	opts := []interface{}{minDueFee}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, ledger.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, ledger.ErrNotFound
	}
	return res, nil
}
