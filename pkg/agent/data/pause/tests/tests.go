package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause"
)

func RunTests(t *testing.T, s pause.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s pause.Store){
		testRoundTrip,
		testUpdateHappyPath,
		testUpdateStaleRecord,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s pause.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_address")
		require.Error(t, err)
		assert.Equal(t, pause.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &pause.Record{
			Address:   "test_address",
			Pauser:    "test_pauser",
			CreatedAt: time.Now(),
		}
		cloned := expected.Clone()
		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, cloned.Address, actual.Address)
		assert.Equal(t, cloned.Pauser, actual.Pauser)
	})
}

func testUpdateHappyPath(t *testing.T, s pause.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &pause.Record{
			Address:   "test_address",
			Pauser:    "test_pauser",
			CreatedAt: time.Now(),
		}
		err := s.Save(ctx, expected)
		require.NoError(t, err)

		expected.Pauser = "test_new_pauser"

		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, "test_new_pauser", actual.Pauser)
	})
}

func testUpdateStaleRecord(t *testing.T, s pause.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &pause.Record{
			Address:   "test_address",
			Pauser:    "test_pauser",
			CreatedAt: time.Now(),
		}
		err := s.Save(ctx, expected)
		require.NoError(t, err)

		stale := expected.Clone()
		stale.Version -= 1
		stale.Pauser = "test_other_pauser"

		err = s.Save(ctx, &stale)
		assert.Equal(t, pause.ErrStaleVersion, err)

		actual, err := s.Get(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, "test_pauser", actual.Pauser)
		assert.EqualValues(t, 1, actual.Version)
	})
}
