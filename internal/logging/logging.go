package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"groupbuy-backend/internal/config"
)

// Setup installs the process-wide slog default. Development gets colored
// text output, everything else JSON.
func Setup(cfg *config.Config) {
	level := parseLevel(cfg.Log.Level)

	var handler slog.Handler
	if cfg.Log.Format == "text" || cfg.Environment.Name == "development" {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
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
