package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_KeyNames(t *testing.T) {
	assert.Equal(t, "report:latest:BTC-EUR", ReportKey("BTC-EUR"))
	assert.Equal(t, "pub:report:BTC-EUR", ReportChannel("BTC-EUR"))
	assert.Equal(t, "pub:trade:BTC-EUR", TradeChannel("BTC-EUR"))
}

func TestWriter_UnreachableServerTripsBreaker(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	w := NewWithClient(client, NewCircuitBreaker(2, time.Hour), "BTC-EUR")
	ctx := context.Background()

	err := w.PublishReport(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)

	require.Error(t, w.PublishTrade(ctx, []byte(`{}`)))
	assert.Equal(t, StateOpen, w.Breaker().CurrentState())

	assert.ErrorIs(t, w.PublishReport(ctx, []byte(`{}`)), ErrCircuitOpen)
}
