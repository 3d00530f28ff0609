package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Services receive children of it
// through their WithLogger options.
func New(format string) *slog.Logger {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}
