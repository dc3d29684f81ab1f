// Package logging wires process-wide structured logging for the splitvault
// binaries. Output is one JSON object per line with stable field names so log
// pipelines can index severity and service without per-binary configuration.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// LevelEnv selects the minimum log level: debug, info, warn or error.
// Unset or unrecognised values fall back to info.
const LevelEnv = "SPLITVAULT_LOG_LEVEL"

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(LevelEnv))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// remapAttr renames slog's built-in keys to the field names the log pipeline
// indexes on.
func remapAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// Setup installs the process-wide JSON logger and returns it. Every line
// carries the service name, the process id and, when provided, the
// environment, so colocated daemon and CLI output stays distinguishable.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       levelFromEnv(),
		ReplaceAttr: remapAttr,
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
		slog.Int("pid", os.Getpid()),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	tagged := handler.WithAttrs(attrs)

	base := slog.New(tagged)
	slog.SetDefault(base)

	// Route the standard library logger through the same handler so
	// dependencies that still call log.Printf land in the pipeline.
	bridge := slog.NewLogLogger(tagged, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
