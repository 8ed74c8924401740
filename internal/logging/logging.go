// Package logging builds the process-wide zap logger.
package logging

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fdg312/cdr-hub/internal/config"
)

// New builds a logger from LOG_LEVEL / LOG_FORMAT. An unparsable level falls
// back to info.
func New(cfg *config.Config, service string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.LogFormat == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	// stdout is reserved for the structured result of the CLI.
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	zapConfig.InitialFields = map[string]interface{}{
		"service":     service,
		"environment": cfg.Env,
	}

	return zapConfig.Build()
}

// StdLogger bridges zap into packages that only need Printf.
func StdLogger(logger *zap.Logger) *log.Logger {
	return zap.NewStdLog(logger)
}
