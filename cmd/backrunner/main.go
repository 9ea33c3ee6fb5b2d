// Command backrunner runs the backrunning core against a topology file.
//
// Usage:
//
//	backrunner -topology path/to/topology.toml [flags]
//
// Flags:
//
//	-topology      path to the topology TOML file (required)
//	-metrics.addr  address to serve Prometheus metrics on (empty disables)
//	-log.file      path to write rotated JSON logs to (empty logs to stderr)
//	-verbosity     log level 0-4 (0=error, 4=debug)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/config"
	"github.com/eth2030/backrunner/internal/composer"
	applog "github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/metrics"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

// backrunnerConfig is the CLI's own flag-bound config, distinct from
// config.TopologyConfig: the latter describes the wired actors, this one
// describes how the binary itself runs (grounded on cmd/eth2030's
// main.go/flags.go split between node.Config and CLI-only settings).
type backrunnerConfig struct {
	TopologyPath string
	MetricsAddr  string
	LogFile      string
	Verbosity    int
}

func defaultConfig() backrunnerConfig {
	return backrunnerConfig{Verbosity: 2}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	if cfg.LogFile != "" {
		applog.SetDefault(applog.NewRotating(cfg.LogFile, verbosityToLevel(cfg.Verbosity), 100, 5, 28))
	} else {
		applog.SetDefault(applog.New(verbosityToLevel(cfg.Verbosity)))
	}
	logger := applog.Default().Module("cmd.backrunner")
	logger.Info("backrunner starting", "version", version, "commit", commit, "topology", cfg.TopologyPath)

	if cfg.TopologyPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -topology is required")
		return 2
	}

	var topology config.TopologyConfig
	if _, err := toml.DecodeFile(cfg.TopologyPath, &topology); err != nil {
		logger.Error("failed to decode topology file", "err", err)
		return 1
	}
	if err := topology.Validate(); err != nil {
		logger.Error("invalid topology", "err", err)
		return 1
	}

	core := metrics.NewCore(metrics.NewRegistry("backrunner"))

	rt, err := composer.Compose(&topology, core)
	if err != nil {
		logger.Error("failed to compose runtime", "err", err)
		return 1
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: core.Registry.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var runResults []actor.Result
	go func() {
		defer close(done)
		results, err := rt.Run(ctx)
		if err != nil {
			logger.Error("runtime exited with error", "err", err)
		}
		runResults = results
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		<-done
	case <-done:
		cancel()
	}

	exitCode := 0
	for _, r := range runResults {
		if r.Err != nil {
			logger.Error("actor exited with error", "actor", r.Actor, "err", r.Err)
			exitCode = 1
		}
	}

	logger.Info("shutdown complete")
	return exitCode
}

// parseFlags parses CLI arguments into a backrunnerConfig. Returns the
// config, whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (backrunnerConfig, bool, int) {
	cfg := defaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("backrunner %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// verbosityToLevel maps the CLI's 0-4 verbosity scale onto slog's levels,
// the same coarse mapping node.VerbosityToLogLevel performs for eth2030.
func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
