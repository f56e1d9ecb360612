// Package observability wires structured logging for the CLI and server.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for command output. It is
// initialized by InitCLILogger before any command runs; until then it is
// a no-op logger so early failures never dereference nil.
var CLILogger = zap.NewNop()

// InitCLILogger configures the CLI logger.
//
// CLI output favors readability: console encoding, no caller info, and
// timestamps only in verbose mode. The configured logger is also
// installed as the zap global.
func InitCLILogger(name string, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		encoderCfg.TimeKey = ""
		encoderCfg.CallerKey = ""
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		// Logging must never abort the process; keep the no-op logger.
		return CLILogger
	}

	logger = logger.Named(name)
	CLILogger = logger
	zap.ReplaceGlobals(logger)
	return logger
}

// NewServerLogger builds a JSON-encoded logger for long-running serve
// mode, where output is consumed by log collectors rather than humans.
func NewServerLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// Sync flushes buffered log entries. Safe to call on any logger state.
func Sync() {
	_ = CLILogger.Sync()
}
