package fee

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSwapFee(t *testing.T) {
	record := &Record{
		Address: "test_address",
	}
	require.NoError(t, record.SetFee(ParameterSwapFeeNumerator, 1))
	require.NoError(t, record.SetFee(ParameterSwapFeeDenominator, 100))

	// No delta, no fee
	actual, err := record.ComputeSwapFee(12345, 12345)
	require.NoError(t, err)
	assert.EqualValues(t, 0, actual)

	// Direction independence
	actual, err = record.ComputeSwapFee(0, 1_000_000)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, actual)

	actual, err = record.ComputeSwapFee(1_000_000, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, actual)

	// Floor division
	actual, err = record.ComputeSwapFee(0, 199)
	require.NoError(t, err)
	assert.EqualValues(t, 1, actual)

	// Monotonic in the delta
	var prev uint64
	for _, delta := range []uint64{1, 100, 10_000, 1_000_000, math.MaxUint64 / 2} {
		fee, err := record.ComputeSwapFee(0, delta)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fee, prev)
		prev = fee
	}

	// Intermediate product exceeds 64 bits without overflowing the result
	actual, err = record.ComputeSwapFee(0, math.MaxUint64)
	require.NoError(t, err)
	assert.EqualValues(t, uint64(math.MaxUint64)/100, actual)

	// Result exceeding 64 bits is rejected
	require.NoError(t, record.SetFee(ParameterSwapFeeNumerator, 200))
	_, err = record.ComputeSwapFee(0, math.MaxUint64)
	assert.Equal(t, ErrFeeOverflow, err)
}

func TestComputeSwapFee_NumeratorAboveDenominator(t *testing.T) {
	record := &Record{
		Address: "test_address",
	}

	// A ratio above one is not rejected
	require.NoError(t, record.SetFee(ParameterSwapFeeNumerator, 150))
	require.NoError(t, record.SetFee(ParameterSwapFeeDenominator, 100))

	actual, err := record.ComputeSwapFee(0, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, actual)
}

func TestSetFee(t *testing.T) {
	record := &Record{
		Address: "test_address",
	}

	require.NoError(t, record.SetFee(ParameterSwapFeeDenominator, 100))

	err := record.SetFee(ParameterSwapFeeDenominator, 0)
	assert.Equal(t, ErrInvalidFeeValue, err)
	assert.EqualValues(t, 100, record.GetFee(ParameterSwapFeeDenominator))

	err = record.SetFee(ParameterCount, 1)
	assert.Equal(t, ErrInvalidFeeValue, err)
}

func TestComputeTransactionFee(t *testing.T) {
	// No prioritization
	actual, err := ComputeTransactionFee(0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, actual)

	// Exact division
	actual, err = ComputeTransactionFee(1_000_000, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5001, actual)

	// Ceiling rounding
	actual, err = ComputeTransactionFee(1_000_001, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5002, actual)

	actual, err = ComputeTransactionFee(200_000, 10_000)
	require.NoError(t, err)
	assert.EqualValues(t, 5000+2_000, actual)

	// Overflow
	_, err = ComputeTransactionFee(math.MaxUint32, math.MaxUint64)
	assert.Equal(t, ErrFeeOverflow, err)

	// Ceiling rounding at the top of the range must not wrap
	_, err = ComputeTransactionFee(1_000_001, 18_446_725_626_983_924_632)
	assert.Equal(t, ErrFeeOverflow, err)
}

func TestCollectorAllowlist(t *testing.T) {
	record := &Record{
		Address: "test_address",
	}
	require.NoError(t, record.SetFee(ParameterSwapFeeDenominator, 100))

	for i := 0; i < MaxCollectors; i++ {
		require.NoError(t, record.AddCollector(string(rune('a'+i))))
	}

	require.NoError(t, record.AddCollector("a"))
	assert.Len(t, record.Collectors, MaxCollectors)

	err := record.AddCollector("overflow")
	assert.Equal(t, ErrCollectorLimitReached, err)

	record.RemoveCollector("a")
	record.RemoveCollector("not_present")
	assert.Len(t, record.Collectors, MaxCollectors-1)
	assert.False(t, record.HasCollector("a"))
}
