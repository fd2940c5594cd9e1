package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var received []Event
	bus.Subscribe(func(_ context.Context, event Event) {
		received = append(received, event)
	})

	bus.Publish(ctx, FeeCollected{
		SubAccount:     "test_sub_account",
		TransactionFee: 5000,
		TradeFee:       10000,
	})
	bus.Publish(ctx, TipSent{
		SubAccount: "test_sub_account",
		TipAccount: "test_tip_account",
		Amount:     100,
	})

	require.Len(t, received, 2)
	assert.NotEqual(t, received[0].Id, received[1].Id)

	payload, ok := received[0].Payload.(FeeCollected)
	require.True(t, ok)
	assert.Equal(t, "fee_collected", payload.Kind())
	assert.EqualValues(t, 10000, payload.TradeFee)

	assert.Equal(t, "tip_sent", received[1].Payload.Kind())
}
