package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewHandler creates the slog handler used process-wide. JSON output for
// anything that looks like production, text otherwise.
func NewHandler(opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	}

	if strings.EqualFold(os.Getenv("ENV"), "prod") {
		return slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.NewTextHandler(os.Stdout, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
