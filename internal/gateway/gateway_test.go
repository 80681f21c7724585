package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := buildEnvelope("report:BTC-EUR", []byte(`{"price":60000}`), now, 42)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env))
	assert.Equal(t, "report:BTC-EUR", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, "2024-03-01T12:00:00Z", env.TS)
	assert.JSONEq(t, `{"price":60000}`, string(env.Data))
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestHub_InitialStateAndReplay(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hubHandler(hub))
	defer srv.Close()
	defer hub.Close()

	hub.Broadcast("report", []byte(`{"n":1}`))
	hub.Broadcast("report", []byte(`{"n":2}`))

	latest := readEnvelope(t, dial(t, srv, ""))
	assert.Equal(t, int64(2), latest.Seq)
	assert.JSONEq(t, `{"n":2}`, string(latest.Data))

	replay := dial(t, srv, "?since=0")
	assert.Equal(t, int64(1), readEnvelope(t, replay).Seq)
	assert.Equal(t, int64(2), readEnvelope(t, replay).Seq)
}

func TestHub_LiveBroadcastAndPong(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hubHandler(hub))
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("trade", []byte(`{"side":"buy"}`))
	env := readEnvelope(t, conn)
	assert.Equal(t, "trade", env.Channel)
	assert.Equal(t, int64(1), env.Seq)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":123}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(msg, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, int64(123), pong.Ping)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func hubHandler(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
