package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry"
)

func RunTests(t *testing.T, s registry.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s registry.Store){
		testRoundTrip,
		testUpdateHappyPath,
		testUpdateStaleRecord,
		testOperatorAllowlist,
		testStatusTransitions,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s registry.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_address")
		require.Error(t, err)
		assert.Equal(t, registry.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &registry.Record{
			Address:   "test_address",
			Status:    registry.StatusActive,
			Authority: "test_authority",
			Operators: []string{"test_operator_1", "test_operator_2"},
			CreatedAt: time.Now(),
		}
		cloned := expected.Clone()
		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.Get(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
	})
}

func testUpdateHappyPath(t *testing.T, s registry.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &registry.Record{
			Address:   "test_address",
			Status:    registry.StatusActive,
			Authority: "test_authority",
			CreatedAt: time.Now(),
		}
		err := s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Version)

		expected.Status = registry.StatusPaused
		expected.Authority = "test_new_authority"
		expected.Operators = []string{"test_operator"}

		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
	})
}

func testUpdateStaleRecord(t *testing.T, s registry.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &registry.Record{
			Address:   "test_address",
			Status:    registry.StatusActive,
			Authority: "test_authority",
			Operators: []string{"test_operator"},
			CreatedAt: time.Now(),
		}
		err := s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Version)

		stale := expected.Clone()
		stale.Version -= 1
		stale.Status = registry.StatusPaused

		err = s.Save(ctx, &stale)
		assert.Equal(t, registry.ErrStaleVersion, err)

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, registry.StatusActive, actual.Status)
		assert.EqualValues(t, 1, actual.Version)
	})
}

func testOperatorAllowlist(t *testing.T, s registry.Store) {
	t.Run("testOperatorAllowlist", func(t *testing.T) {
		ctx := context.Background()

		record := &registry.Record{
			Address:   "test_address",
			Status:    registry.StatusActive,
			Authority: "test_authority",
			CreatedAt: time.Now(),
		}

		for i := 0; i < registry.MaxOperators; i++ {
			require.NoError(t, record.AddOperator(fmt.Sprintf("test_operator_%d", i)))
		}

		// Idempotent re-add at capacity
		require.NoError(t, record.AddOperator("test_operator_0"))
		assert.Len(t, record.Operators, registry.MaxOperators)

		err := record.AddOperator("test_operator_overflow")
		assert.Equal(t, registry.ErrOperatorLimitReached, err)

		require.NoError(t, s.Save(ctx, record))

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		require.Len(t, actual.Operators, registry.MaxOperators)
		assert.Equal(t, record.Operators, actual.Operators)

		actual.RemoveOperator("test_operator_5")
		actual.RemoveOperator("test_operator_not_present")
		assert.Len(t, actual.Operators, registry.MaxOperators-1)
		assert.False(t, actual.HasOperator("test_operator_5"))

		require.NoError(t, s.Save(ctx, actual))

		actual, err = s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Len(t, actual.Operators, registry.MaxOperators-1)
		assert.False(t, actual.HasOperator("test_operator_5"))
		assert.True(t, actual.HasOperator("test_operator_0"))
	})
}

func testStatusTransitions(t *testing.T, s registry.Store) {
	t.Run("testStatusTransitions", func(t *testing.T) {
		ctx := context.Background()

		record := &registry.Record{
			Address:   "test_address",
			Status:    registry.StatusActive,
			Authority: "test_authority",
			CreatedAt: time.Now(),
		}
		require.NoError(t, s.Save(ctx, record))

		assert.Equal(t, registry.ErrInvalidStatus, record.SetStatus(registry.StatusActive))
		assert.Equal(t, registry.StatusActive, record.Status)

		require.NoError(t, record.SetStatus(registry.StatusPaused))
		require.NoError(t, s.Save(ctx, record))

		assert.Equal(t, registry.ErrInvalidStatus, record.SetStatus(registry.StatusPaused))
		assert.Equal(t, registry.ErrInvalidStatus, record.SetStatus(registry.StatusUninitialized))

		require.NoError(t, record.SetStatus(registry.StatusActive))
		require.NoError(t, s.Save(ctx, record))

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, registry.StatusActive, actual.Status)
		assert.EqualValues(t, 3, actual.Version)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *registry.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Status, obj2.Status)
	assert.Equal(t, obj1.Authority, obj2.Authority)
	assert.Equal(t, obj1.Operators, obj2.Operators)
}
