package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs the default slog logger. LOG_LEVEL overrides level when set.
func Init(level, format string) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}

	slog.SetDefault(slog.New(NewHandler(os.Stderr, level, format)))
}

func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
