package logger

import "go.uber.org/zap"

// Log is the package-global logger. It is a no-op until Initialize is called.
var Log = zap.NewNop()

// Initialize builds the global logger with the given log level.
func Initialize(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	Log = logger
	return nil
}
