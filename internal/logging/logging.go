// Package logging sets up the supervisor's diagnostic stream. Per
// spec.md §1 ("Logging is assumed to be line-based writes to a
// diagnostic stream") this configures zap's console encoder, which is
// line-based, writing to stderr — the same destination the teacher's
// fmt.Printf/Fprintf calls used, upgraded to structured leveled logging.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the supervisor's logger. debug enables zap's Debug level
// (useful when diagnosing reload/reap races); otherwise Info and above.
func New(debug bool) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	cfg := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    consoleEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " "
	return cfg
}
