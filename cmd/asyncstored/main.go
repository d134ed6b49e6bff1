// Command asyncstored runs the async operation dispatcher against a
// kvsqlite-backed engine, reading table formats from a directory of
// .format files and exiting cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ha1tch/asyncstore/async"
	"github.com/ha1tch/asyncstore/engine/kvsqlite"
	"github.com/ha1tch/asyncstore/internal/asyncconfig"
	"github.com/ha1tch/asyncstore/internal/formatwatch"
	"github.com/ha1tch/asyncstore/pkg/log"
	"github.com/ha1tch/asyncstore/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("asyncstored", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := asyncconfig.DefaultConfig()
	cfg.ApplyEnv()
	cfg.BindFlags(fs)

	showVersion := fs.Bool("version", false, "show version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "asyncstored: %v\n", err)
		return 2
	}
	format := log.FormatText
	if cfg.LogFormat == "json" {
		format = log.FormatJSON
	}
	logger := log.New(log.Config{
		DefaultLevel: level,
		Format:       format,
		Output:       stderr,
		AsyncBuffer:  cfg.LogAsyncBuffer,
	})
	defer logger.Close()

	logger.Config().Info("configuration loaded",
		"workers", cfg.AsyncWorkers, "storage_path", cfg.StoragePath,
		"format_dir", cfg.FormatDir, "log_async_buffer", cfg.LogAsyncBuffer)

	eng, err := kvsqlite.Open(kvsqlite.Config{
		Path:         cfg.StoragePath,
		MaxOpenConns: cfg.AsyncWorkers,
		MaxIdleConns: cfg.AsyncWorkers,
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		CacheSize:    -2000,
		BusyTimeout:  5000,
	})
	if err != nil {
		logger.EngineCat().Error("failed to open storage engine", err)
		return 1
	}
	defer eng.Close()

	var formats *formatwatch.Registry
	if cfg.FormatDir != "" {
		formats = formatwatch.New(logger)
		if err := formats.Watch(cfg.FormatDir); err != nil {
			logger.Dispatch().Error("failed to watch format directory", err, "dir", cfg.FormatDir)
			return 1
		}
		defer formats.Close()
	}

	idleMode := async.IdleTimedWait
	if cfg.IdleYield {
		idleMode = async.IdleYield
	}

	dispatcher, err := async.New(eng, async.Config{
		AsyncWorkers:     cfg.AsyncWorkers,
		FlushWaitTimeout: cfg.FlushWaitTimeout,
		IdleWaitTimeout:  cfg.IdleWaitTimeout,
		IdleMode:         idleMode,
		Logger:           logger,
	})
	if err != nil {
		logger.Dispatch().Error("failed to construct dispatcher", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(ctx); err != nil {
		logger.Dispatch().Error("failed to start dispatcher", err)
		return 1
	}

	logger.Dispatch().Info("asyncstored running", "workers", cfg.AsyncWorkers, "storage", cfg.StoragePath)
	<-ctx.Done()

	logger.Dispatch().Info("shutdown signal received, draining")
	dispatcher.Stop()

	return 0
}
