package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/jwebster45206/npc-engine/internal/config"
)

// Setup configures the global slog logger based on environment
func Setup(cfg *config.Config) *slog.Logger {
	logger := slog.New(NewHandler(os.Stdout, cfg.Environment, cfg.LogLevel))

	// Set as default logger
	slog.SetDefault(logger)

	return logger
}

// NewHandler returns a JSON handler for production and a colourised
// charmbracelet handler everywhere else.
func NewHandler(w io.Writer, environment string, level slog.Level) slog.Handler {
	if environment == "production" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	h := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "npc-engine",
	})
	h.SetLevel(charmlog.Level(level))
	return h
}

// WithRequestID adds request ID to logger context
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithError adds error to logger context
func WithError(logger *slog.Logger, err error) *slog.Logger {
	return logger.With("error", err.Error())
}
