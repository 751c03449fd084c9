// Package config loads the knobs that govern segment sizing and lock
// behavior from the environment, with an optional .env file for local
// development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults mirror the constants named in the component design: a 10-slot
// lock bank and a one-second acquire timeout unless overridden.
const (
	DefaultLockCount       = 10
	DefaultLockWait        = time.Second
	DefaultSegmentSize     = 8 * 1024 * 1024
	DefaultMetaSegmentSize = 256 * 1024
)

type Config struct {
	SegmentSize int64
	LockCount   int
	LockWait    time.Duration
	LogLevel    string
}

// Load reads .env (if present, ignoring a missing file) then the process
// environment, falling back to the package defaults.
func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{
		SegmentSize: DefaultSegmentSize,
		LockCount:   DefaultLockCount,
		LockWait:    DefaultLockWait,
		LogLevel:    "info",
	}

	if v := os.Getenv("SILO_SEGMENT_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.SegmentSize = n
		}
	}
	if v := os.Getenv("SILO_LOCK_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockCount = n
		}
	}
	if v := os.Getenv("SILO_LOCK_WAIT_MICROS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.LockWait = time.Duration(n) * time.Microsecond
		}
	}
	if v := os.Getenv("SILO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
