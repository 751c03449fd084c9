// Package logging provides the process-wide zap logger used by the
// segment, lock and dynamic-table layers and the demo binary: segment
// creation and growth at Info, each write-lock cycle at Debug. Sessions,
// commits and the static database façade do not log.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// Init sets the package logger's level. Safe to call more than once; only
// the first call takes effect, matching how a single process attaches to
// one store.
func Init(level string) {
	once.Do(func() {
		lvl := zapcore.InfoLevel
		_ = lvl.UnmarshalText([]byte(level))

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.EncoderConfig.TimeKey = "ts"

		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
}

// L returns the package logger, lazily initialized at info level if no one
// has called Init yet.
func L() *zap.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}
