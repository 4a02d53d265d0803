package util

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger builds the process logger. Production gets JSON at info, anything else
// the colored console encoder at debug. A non-empty level overrides either default.
func InitLogger(env, level string) error {
	l, err := newLogger(env, level)
	if err != nil {
		return err
	}

	logger = l
	zap.ReplaceGlobals(logger)
	return nil
}

func newLogger(env, level string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		config = zap.NewProductionConfig()
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	return config.Build(zap.Fields(zap.String("service", ServiceName)))
}

// GetLogger returns the process logger, falling back to a development logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SetLogger swaps the process logger, mostly for tests
func SetLogger(l *zap.Logger) {
	logger = l
}

func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
