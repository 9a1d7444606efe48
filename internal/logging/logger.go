// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the package-level logger used by call sites that run before the
// application graph is wired (CLI bootstrap, config loading). It starts as
// a no-op and is replaced by InitLogger.
var L = zap.NewNop()

// InitLogger builds the bootstrap logger and installs it as L. Development
// mode is selected with HARVESTER_LOG_DEVELOPMENT=true so the CLI can log
// readably before viper has loaded anything.
func InitLogger() {
	development := os.Getenv("HARVESTER_LOG_DEVELOPMENT") == "true"
	logger, err := New(development)
	if err != nil {
		// Nothing better to do this early.
		panic(fmt.Sprintf("logging: build bootstrap logger: %v", err))
	}
	L = logger
}

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
