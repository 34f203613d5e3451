package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

// initLogger builds the process logger. Commands log to stderr so stdout
// stays clean for command output.
func initLogger(verbose bool) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return
	}
	logger = l
	// Backends without an injected logger fall back to the global one.
	zap.ReplaceGlobals(l)
}

func syncLogger() {
	_ = logger.Sync()
}
