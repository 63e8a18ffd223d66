package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process logger and installs it as the slog default.
// The level string comes from TRELLIS_LOG_LEVEL and follows slog's
// names ("debug", "info", "warn", "error"); empty or unrecognized
// values mean info.
func Setup(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
			lvl = slog.LevelInfo
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
