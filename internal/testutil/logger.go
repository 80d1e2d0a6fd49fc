package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
//
// Use this in tests to reduce noise. Note: log.Logger is a type alias for
// *slog.Logger, so this function and log.NewNop() return the same type.
// Prefer log.NewNop() when already importing the internal/log package.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
