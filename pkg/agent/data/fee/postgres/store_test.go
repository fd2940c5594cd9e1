package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee/tests"

	postgrestest "github.com/easycoin-labs/agent-server/pkg/database/postgres/test"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	// Used for testing ONLY, the table and migrations are external to this repository
	tableCreate = `
		CREATE TABLE agentserver__core_feeregistry(
			id SERIAL NOT NULL PRIMARY KEY,

			address TEXT NOT NULL UNIQUE,

			swap_fee_numerator BIGINT NOT NULL,
			swap_fee_denominator BIGINT NOT NULL,

			version BIGINT NOT NULL,

			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE agentserver__core_feeregistrycollector(
			id SERIAL NOT NULL PRIMARY KEY,

			address TEXT NOT NULL,
			collector TEXT NOT NULL,

			CONSTRAINT agentserver__core_feeregistrycollector__uniq__address__and__collector UNIQUE (address, collector)
		);
	`

	// Used for testing ONLY, the table and migrations are external to this repository
	tableDestroy = `
		DROP TABLE agentserver__core_feeregistry;
		DROP TABLE agentserver__core_feeregistrycollector;
	`
)

var (
	testStore fee.Store
	teardown  func()
)

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	testPool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	var cleanUpFunc func()
	db, cleanUpFunc, err := postgrestest.StartPostgresDB(testPool)
	if err != nil {
		log.WithError(err).Error("Error starting postgres image")
		os.Exit(1)
	}
	defer db.Close()

	if err := createTestTables(db); err != nil {
		logrus.StandardLogger().WithError(err).Error("Error creating test tables")
		cleanUpFunc()
		os.Exit(1)
	}

	testStore = New(db)
	teardown = func() {
		if pc := recover(); pc != nil {
			cleanUpFunc()
			panic(pc)
		}

		if err := resetTestTables(db); err != nil {
			logrus.StandardLogger().WithError(err).Error("Error resetting test tables")
			cleanUpFunc()
			os.Exit(1)
		}
	}

	code := m.Run()
	cleanUpFunc()
	os.Exit(code)
}

func TestFeePostgresStore(t *testing.T) {
	tests.RunTests(t, testStore, teardown)
}

func createTestTables(db *sql.DB) error {
	_, err := db.Exec(tableCreate)
	if err != nil {
		logrus.StandardLogger().WithError(err).Error("could not create test tables")
		return err
	}
	return nil
}

func resetTestTables(db *sql.DB) error {
	_, err := db.Exec(tableDestroy)
	if err != nil {
		logrus.StandardLogger().WithError(err).Error("could not drop test tables")
		return err
	}

	return createTestTables(db)
}
