package tests

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/database/query"
)

func RunTests(t *testing.T, s ledger.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s ledger.Store){
		testRoundTrip,
		testUpdateHappyPath,
		testUpdateStaleRecord,
		testSubAccountPrimitives,
		testDueFeeAccrual,
		testDelete,
		testGetAllWithDueFee,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s ledger.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_owner")
		require.Error(t, err)
		assert.Equal(t, ledger.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &ledger.Record{
			Owner: "test_owner",
			SubAccounts: []ledger.SubAccount{
				{Nonce: 0, DueFee: 0},
				{Nonce: 7, DueFee: 12345},
			},
			CreatedAt: time.Now(),
		}
		cloned := expected.Clone()
		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.Get(ctx, "test_owner")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
	})
}

func testUpdateHappyPath(t *testing.T, s ledger.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &ledger.Record{
			Owner:     "test_owner",
			CreatedAt: time.Now(),
		}
		err := s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Version)

		require.NoError(t, expected.AddSubAccount(0))
		require.NoError(t, expected.AddSubAccount(1))

		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.Get(ctx, "test_owner")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
	})
}

func testUpdateStaleRecord(t *testing.T, s ledger.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &ledger.Record{
			Owner: "test_owner",
			SubAccounts: []ledger.SubAccount{
				{Nonce: 0},
			},
			CreatedAt: time.Now(),
		}
		err := s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Version)

		stale := expected.Clone()
		stale.Version -= 1
		require.NoError(t, stale.AddDueFee(0, 500))

		err = s.Save(ctx, &stale)
		assert.Equal(t, ledger.ErrStaleVersion, err)

		actual, err := s.Get(ctx, "test_owner")
		require.NoError(t, err)
		dueFee, err := actual.GetDueFee(0)
		require.NoError(t, err)
		assert.EqualValues(t, 0, dueFee)
		assert.EqualValues(t, 1, actual.Version)
	})
}

func testSubAccountPrimitives(t *testing.T, s ledger.Store) {
	t.Run("testSubAccountPrimitives", func(t *testing.T) {
		ctx := context.Background()

		record := &ledger.Record{
			Owner:     "test_owner",
			CreatedAt: time.Now(),
		}

		assert.True(t, record.EligibleToClose())

		for i := 0; i < ledger.MaxSubAccounts; i++ {
			require.NoError(t, record.AddSubAccount(uint32(i)))
		}
		assert.Equal(t, ledger.ErrSubAccountExists, record.AddSubAccount(0))
		assert.Equal(t, ledger.ErrSubAccountLimitReached, record.AddSubAccount(ledger.MaxSubAccounts))
		assert.False(t, record.EligibleToClose())

		require.NoError(t, s.Save(ctx, record))

		actual, err := s.Get(ctx, "test_owner")
		require.NoError(t, err)
		require.Len(t, actual.SubAccounts, ledger.MaxSubAccounts)
		assert.True(t, actual.HasSubAccount(5))
		assert.False(t, actual.HasSubAccount(ledger.MaxSubAccounts))

		require.NoError(t, actual.AddDueFee(5, 100))
		assert.Equal(t, ledger.ErrSubAccountInDebt, actual.RemoveSubAccount(5))
		require.NoError(t, actual.SubDueFee(5, 100))
		require.NoError(t, actual.RemoveSubAccount(5))
		assert.Equal(t, ledger.ErrSubAccountNotFound, actual.RemoveSubAccount(5))

		require.NoError(t, s.Save(ctx, actual))

		actual, err = s.Get(ctx, "test_owner")
		require.NoError(t, err)
		assert.Len(t, actual.SubAccounts, ledger.MaxSubAccounts-1)
		assert.False(t, actual.HasSubAccount(5))
	})
}

func testDueFeeAccrual(t *testing.T, s ledger.Store) {
	t.Run("testDueFeeAccrual", func(t *testing.T) {
		ctx := context.Background()

		record := &ledger.Record{
			Owner:     "test_owner",
			CreatedAt: time.Now(),
		}
		require.NoError(t, record.AddSubAccount(0))
		require.NoError(t, s.Save(ctx, record))

		require.NoError(t, record.AddDueFee(0, 10_000))
		require.NoError(t, record.AddDueFee(0, 2_500))
		require.NoError(t, s.Save(ctx, record))

		actual, err := s.Get(ctx, "test_owner")
		require.NoError(t, err)
		dueFee, err := actual.GetDueFee(0)
		require.NoError(t, err)
		assert.EqualValues(t, 12_500, dueFee)

		assert.Equal(t, ledger.ErrDueFeeOverflow, actual.AddDueFee(0, math.MaxUint64))
		assert.Equal(t, ledger.ErrDueFeeOverflow, actual.SubDueFee(0, 12_501))
		assert.Equal(t, ledger.ErrSubAccountNotFound, actual.AddDueFee(1, 1))

		// Failed checked operations leave the record untouched
		dueFee, err = actual.GetDueFee(0)
		require.NoError(t, err)
		assert.EqualValues(t, 12_500, dueFee)

		require.NoError(t, actual.SubDueFee(0, 12_500))
		require.NoError(t, s.Save(ctx, actual))

		actual, err = s.Get(ctx, "test_owner")
		require.NoError(t, err)
		dueFee, err = actual.GetDueFee(0)
		require.NoError(t, err)
		assert.EqualValues(t, 0, dueFee)
	})
}

func testDelete(t *testing.T, s ledger.Store) {
	t.Run("testDelete", func(t *testing.T) {
		ctx := context.Background()

		assert.Equal(t, ledger.ErrNotFound, s.Delete(ctx, "test_owner"))

		record := &ledger.Record{
			Owner: "test_owner",
			SubAccounts: []ledger.SubAccount{
				{Nonce: 0},
			},
			CreatedAt: time.Now(),
		}
		require.NoError(t, s.Save(ctx, record))

		require.NoError(t, s.Delete(ctx, "test_owner"))

		_, err := s.Get(ctx, "test_owner")
		assert.Equal(t, ledger.ErrNotFound, err)

		assert.Equal(t, ledger.ErrNotFound, s.Delete(ctx, "test_owner"))
	})
}

func testGetAllWithDueFee(t *testing.T, s ledger.Store) {
	t.Run("testGetAllWithDueFee", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllWithDueFee(ctx, 1, query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, ledger.ErrNotFound, err)

		for i := 0; i < 5; i++ {
			record := &ledger.Record{
				Owner: fmt.Sprintf("test_owner_%d", i),
				SubAccounts: []ledger.SubAccount{
					{Nonce: 0, DueFee: uint64(i) * 1_000},
				},
				CreatedAt: time.Now(),
			}
			require.NoError(t, s.Save(ctx, record))
		}

		// Owners 1 through 4 owe something
		actual, err := s.GetAllWithDueFee(ctx, 1, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 4)
		assert.Equal(t, "test_owner_1", actual[0].Owner)
		assert.Equal(t, "test_owner_4", actual[3].Owner)

		// Threshold filters out smaller debts
		actual, err = s.GetAllWithDueFee(ctx, 3_000, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "test_owner_3", actual[0].Owner)
		assert.Equal(t, "test_owner_4", actual[1].Owner)

		// A zero threshold still excludes owners owing nothing
		actual, err = s.GetAllWithDueFee(ctx, 0, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 4)

		// Paging forward by cursor
		actual, err = s.GetAllWithDueFee(ctx, 1, query.EmptyCursor, 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "test_owner_1", actual[0].Owner)
		assert.Equal(t, "test_owner_2", actual[1].Owner)

		actual, err = s.GetAllWithDueFee(ctx, 1, query.ToCursor(actual[1].Id), 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "test_owner_3", actual[0].Owner)
		assert.Equal(t, "test_owner_4", actual[1].Owner)

		_, err = s.GetAllWithDueFee(ctx, 1, query.ToCursor(actual[1].Id), 2, query.Ascending)
		assert.Equal(t, ledger.ErrNotFound, err)

		// Descending ordering
		actual, err = s.GetAllWithDueFee(ctx, 1, query.EmptyCursor, 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 4)
		assert.Equal(t, "test_owner_4", actual[0].Owner)
		assert.Equal(t, "test_owner_1", actual[3].Owner)

		// Sub-accounts come back with the paged records
		require.Len(t, actual[0].SubAccounts, 1)
		assert.EqualValues(t, 4_000, actual[0].SubAccounts[0].DueFee)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *ledger.Record) {
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.SubAccounts, obj2.SubAccounts)
}
