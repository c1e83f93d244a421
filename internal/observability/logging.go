// Package observability builds the server's zap loggers and the scoped children
// game components log through.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/hetman/internal/config"
)

// ServiceName is attached to every entry of the root logger.
const ServiceName = "hetman"

// NewLogger creates the root logger. The json format uses the sampled
// production encoder; console uses the development encoder with colored levels
// and no stack traces below error.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Postcondition: Returns a configured logger or a non-nil error naming the bad
// field.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	zapCfg, err := formatConfig(cfg.Format)
	if err != nil {
		return nil, err
	}

	zapCfg.Level = level
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]any{"service": ServiceName}

	logger, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func formatConfig(format string) (zap.Config, error) {
	switch format {
	case "json":
		return zap.NewProductionConfig(), nil
	case "console":
		c := zap.NewDevelopmentConfig()
		c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return c, nil
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", format)
	}
}

// RoomLogger returns a child of logger tagged with the room code.
func RoomLogger(logger *zap.Logger, code string) *zap.Logger {
	return logger.With(zap.String("room", code))
}

// PlayerLogger returns a child of logger tagged with the room code and one seat.
func PlayerLogger(logger *zap.Logger, code, playerID string) *zap.Logger {
	return logger.With(zap.String("room", code), zap.String("player", playerID))
}
