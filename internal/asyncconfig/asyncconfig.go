// Package asyncconfig holds the dispatcher's recognized configuration
// (spec.md §6) and binds it onto a flag.FlagSet the same way
// cmd/aul/main.go binds its own server config.
package asyncconfig

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"
)

// Environment variable names recognized by ApplyEnv, following the
// teacher's envHost/envPort naming convention.
const (
	envWorkers     = "ASYNCSTORE_WORKERS"
	envLogLevel    = "ASYNCSTORE_LOG_LEVEL"
	envStoragePath = "ASYNCSTORE_STORAGE_PATH"
)

// Config holds the options spec.md §6 recognizes, plus the ambient
// logging/storage options a runnable binary needs around them.
type Config struct {
	// AsyncWorkers is the fixed worker pool size.
	AsyncWorkers int

	// FlushWaitTimeout bounds each wait on the flush condition variable.
	FlushWaitTimeout time.Duration

	// IdleWaitTimeout bounds each wait on the ops condition variable.
	IdleWaitTimeout time.Duration

	// IdleYield switches idle workers to a bare scheduler yield instead
	// of a timed condition wait.
	IdleYield bool

	// QueueDepthHint is advisory only — the dispatcher's queue is
	// unbounded (spec.md §3); nothing in the dispatcher reads it.
	QueueDepthHint int

	// StoragePath is the kvsqlite database path ("file::memory:?cache=shared"
	// style DSN or a file path).
	StoragePath string

	// FormatDir, if non-empty, is watched for *.format files.
	FormatDir string

	LogLevel  string
	LogFormat string

	// LogAsyncBuffer, if non-zero, runs the logger's async buffered
	// writer with this channel capacity instead of writing synchronously.
	LogAsyncBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AsyncWorkers:     4,
		FlushWaitTimeout: 10 * time.Second,
		IdleWaitTimeout:  1 * time.Second,
		IdleYield:        false,
		QueueDepthHint:   1024,
		StoragePath:      "file::memory:?cache=shared",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// BindFlags registers cfg's fields onto fs, using cfg's current values as
// defaults. Call after DefaultConfig (or after loading a config file) so
// flag defaults reflect it.
func (cfg *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&cfg.AsyncWorkers, "workers", cfg.AsyncWorkers, "fixed async worker pool size")
	fs.DurationVar(&cfg.FlushWaitTimeout, "flush-wait-timeout", cfg.FlushWaitTimeout, "max time to block on the flush condition before re-checking state")
	fs.DurationVar(&cfg.IdleWaitTimeout, "idle-wait-timeout", cfg.IdleWaitTimeout, "max time an idle worker blocks on the ops condition")
	fs.BoolVar(&cfg.IdleYield, "idle-yield", cfg.IdleYield, "idle workers yield instead of timed-waiting (busy-poll)")
	fs.IntVar(&cfg.QueueDepthHint, "queue-depth-hint", cfg.QueueDepthHint, "advisory queue depth (not read by the dispatcher)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "kvsqlite database path (\"file::memory:?cache=shared\"-style DSN or file path)")
	fs.StringVar(&cfg.FormatDir, "format-dir", cfg.FormatDir, "directory of .format files to load and watch (empty disables watching)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	fs.IntVar(&cfg.LogAsyncBuffer, "log-async-buffer", cfg.LogAsyncBuffer, "async log buffer size (0 disables async logging)")
}

// ApplyEnv overrides cfg's fields from recognized environment variables.
// Call after DefaultConfig and before BindFlags, so a flag the caller
// passes explicitly still wins over the environment (JSON/programmatic
// defaults -> env -> CLI, increasing precedence).
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(envWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AsyncWorkers = n
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envStoragePath); v != "" {
		cfg.StoragePath = v
	}
}

// Usage writes a short usage banner to w, in the style of
// cmd/aul/main.go's printUsage.
func Usage(w io.Writer, fs *flag.FlagSet) {
	fs.SetOutput(w)
	fs.PrintDefaults()
}
