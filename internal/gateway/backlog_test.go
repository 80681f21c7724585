package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqsOf(t *testing.T, envs [][]byte) []int64 {
	t.Helper()
	out := []int64{}
	for _, raw := range envs {
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env.Seq)
	}
	return out
}

func TestBacklog_NumbersReportEnvelopes(t *testing.T) {
	b := newBacklog("report:BTC-EUR", 10)
	assert.Nil(t, b.last())
	assert.Empty(t, b.since(0))

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := b.append([]byte(`{"cycle_id":"BTC-EUR-1-1709294400000"}`), now)
	b.append([]byte(`{"cycle_id":"BTC-EUR-2-1709294410000"}`), now.Add(10*time.Second))

	var env envelope
	require.NoError(t, json.Unmarshal(first, &env))
	assert.Equal(t, "report:BTC-EUR", env.Channel)
	assert.Equal(t, int64(1), env.Seq)

	require.NoError(t, json.Unmarshal(b.last(), &env))
	assert.Equal(t, int64(2), env.Seq)
	assert.Equal(t, "2024-03-01T12:00:10Z", env.TS)
	assert.JSONEq(t, `{"cycle_id":"BTC-EUR-2-1709294410000"}`, string(env.Data))
}

func TestBacklog_SinceDropsEvictedTrades(t *testing.T) {
	b := newBacklog("trade:BTC-EUR", 3)
	for i := 0; i < 5; i++ {
		b.append([]byte(`{"side":"buy"}`), time.Unix(0, 0))
	}

	assert.Equal(t, []int64{3, 4, 5}, seqsOf(t, b.since(0)))
	assert.Equal(t, []int64{5}, seqsOf(t, b.since(4)))
	assert.Empty(t, b.since(5))
	assert.Empty(t, b.since(99))
}
