// Package observability provides the service logger and Prometheus metrics.
package observability

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger returns a structured logger. The "text" format writes coloured,
// human-readable lines for local development; anything else writes JSON.
func NewLogger(w io.Writer, format string, level slog.Level, appName, env string) *slog.Logger {
	if format == "text" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With(
		"app", appName,
		"env", env,
	)
}
