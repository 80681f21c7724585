package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWriter_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "cryptobot", slog.LevelInfo).Info("hello", "k", 1)

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if m["service"] != "cryptobot" || m["msg"] != "hello" {
		t.Errorf("unexpected record: %v", m)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCycleID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No cycle ID set
	if id := CycleID(ctx); id != "" {
		t.Errorf("expected empty cycle id, got %q", id)
	}

	ctx = WithCycleID(ctx, "BTC-EUR-1-123")
	if id := CycleID(ctx); id != "BTC-EUR-1-123" {
		t.Errorf("expected 'BTC-EUR-1-123', got %q", id)
	}
}

func TestGenerateCycleID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := GenerateCycleID("BTC-EUR", 7, ts)

	if !strings.HasPrefix(id, "BTC-EUR-7-") {
		t.Errorf("expected cycle id to start with 'BTC-EUR-7-', got %s", id)
	}
	if !strings.HasSuffix(id, "1705314600123") {
		t.Errorf("expected cycle id to end with the millisecond timestamp, got %s", id)
	}
}

func TestLogWithCycle(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithCycle(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no cycle id, got %v", attrs)
	}

	ctx = WithCycleID(ctx, "abc-123")
	if attrs := LogWithCycle(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with cycle id set")
	}
}
