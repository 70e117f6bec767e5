package util

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.Mutex
	logger   *zap.Logger
)

// InitLogger initializes the global logger. Production emits JSON,
// everything else uses the colored development encoder.
func InitLogger(env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := config.Build()
	if err != nil {
		return err
	}

	loggerMu.Lock()
	logger = built
	loggerMu.Unlock()

	zap.ReplaceGlobals(built)
	return nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// ComponentLogger returns the global logger tagged with a component name
func ComponentLogger(component string) *zap.Logger {
	return GetLogger().With(zap.String("component", component))
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger != nil {
		_ = logger.Sync()
	}
}
