package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/fee"
)

func RunTests(t *testing.T, s fee.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s fee.Store){
		testRoundTrip,
		testUpdateHappyPath,
		testUpdateStaleRecord,
		testCollectorAllowlist,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s fee.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_address")
		require.Error(t, err)
		assert.Equal(t, fee.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &fee.Record{
			Address:    "test_address",
			Collectors: []string{"test_collector_1", "test_collector_2"},
			CreatedAt:  time.Now(),
		}
		require.NoError(t, expected.SetFee(fee.ParameterSwapFeeNumerator, 1))
		require.NoError(t, expected.SetFee(fee.ParameterSwapFeeDenominator, 100))

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

func testUpdateHappyPath(t *testing.T, s fee.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &fee.Record{
			Address:   "test_address",
			CreatedAt: time.Now(),
		}
		require.NoError(t, expected.SetFee(fee.ParameterSwapFeeDenominator, 100))

		err := s.Save(ctx, expected)
		require.NoError(t, err)

		require.NoError(t, expected.SetFee(fee.ParameterSwapFeeNumerator, 5))
		require.NoError(t, expected.AddCollector("test_collector"))

		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
	})
}

func testUpdateStaleRecord(t *testing.T, s fee.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &fee.Record{
			Address:   "test_address",
			CreatedAt: time.Now(),
		}
		require.NoError(t, expected.SetFee(fee.ParameterSwapFeeNumerator, 1))
		require.NoError(t, expected.SetFee(fee.ParameterSwapFeeDenominator, 100))

		err := s.Save(ctx, expected)
		require.NoError(t, err)

		stale := expected.Clone()
		stale.Version -= 1
		require.NoError(t, stale.SetFee(fee.ParameterSwapFeeNumerator, 99))

		err = s.Save(ctx, &stale)
		assert.Equal(t, fee.ErrStaleVersion, err)

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.EqualValues(t, 1, actual.GetFee(fee.ParameterSwapFeeNumerator))
		assert.EqualValues(t, 1, actual.Version)
	})
}

func testCollectorAllowlist(t *testing.T, s fee.Store) {
	t.Run("testCollectorAllowlist", func(t *testing.T) {
		ctx := context.Background()

		record := &fee.Record{
			Address:   "test_address",
			CreatedAt: time.Now(),
		}
		require.NoError(t, record.SetFee(fee.ParameterSwapFeeDenominator, 100))

		for i := 0; i < fee.MaxCollectors; i++ {
			require.NoError(t, record.AddCollector(fmt.Sprintf("test_collector_%d", i)))
		}

		require.NoError(t, s.Save(ctx, record))

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		require.Len(t, actual.Collectors, fee.MaxCollectors)
		assert.Equal(t, record.Collectors, actual.Collectors)

		actual.RemoveCollector("test_collector_3")
		require.NoError(t, s.Save(ctx, actual))

		actual, err = s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Len(t, actual.Collectors, fee.MaxCollectors-1)
		assert.False(t, actual.HasCollector("test_collector_3"))
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *fee.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Fees, obj2.Fees)
	assert.Equal(t, obj1.Collectors, obj2.Collectors)
}
