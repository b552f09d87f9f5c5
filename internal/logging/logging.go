// Package logging constructs the zap loggers used by the supervision
// layers. CLI command output stays on plain stdout/stderr printing; zap
// is for the long-running supervisor, where structured, timestamped
// records of starts, exits, and restarts are what you grep at 3am.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a logger writing human-readable console output to
// stderr. Verbose mode lowers the level to debug and enables caller
// annotations; otherwise the level is info.
//
// stderr keeps structured logs separate from command output on stdout,
// so `stackd up --json | jq` keeps working while the supervisor logs.
func NewLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		cfg.DisableCaller = true
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// NewNopLogger returns a logger that discards everything. Used in tests
// and by callers that haven't wired logging yet.
func NewNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
