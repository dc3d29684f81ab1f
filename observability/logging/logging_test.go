package logging

import (
	"log/slog"
	"testing"
	"time"
)

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for value, want := range cases {
		t.Setenv(LevelEnv, value)
		if got := levelFromEnv(); got != want {
			t.Fatalf("%q: got %v, want %v", value, got, want)
		}
	}
}

func TestRemapAttr(t *testing.T) {
	if got := remapAttr(nil, slog.Time(slog.TimeKey, time.Unix(1_700_000_000, 0))); got.Key != "timestamp" {
		t.Fatalf("time key: %s", got.Key)
	}
	level := remapAttr(nil, slog.Any(slog.LevelKey, slog.LevelWarn))
	if level.Key != "severity" || level.Value.String() != "WARN" {
		t.Fatalf("level attr: %s=%s", level.Key, level.Value)
	}
	if got := remapAttr(nil, slog.String(slog.MessageKey, "hello")); got.Key != "message" {
		t.Fatalf("message key: %s", got.Key)
	}
	custom := remapAttr(nil, slog.String("service", "splitvaultd"))
	if custom.Key != "service" || custom.Value.String() != "splitvaultd" {
		t.Fatalf("custom attr changed: %s=%s", custom.Key, custom.Value)
	}
}
