package main

import "flag"

// newFlagSet creates a flag.FlagSet bound to a backrunnerConfig, with
// ContinueOnError so the caller controls error handling (grounded on
// cmd/eth2030/flags.go's custom flagSet, simplified here since this
// command has no uint64 flags needing a custom Value).
func newFlagSet(cfg *backrunnerConfig) *flag.FlagSet {
	fs := flag.NewFlagSet("backrunner", flag.ContinueOnError)
	fs.StringVar(&cfg.TopologyPath, "topology", cfg.TopologyPath, "path to the topology TOML file")
	fs.StringVar(&cfg.MetricsAddr, "metrics.addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (empty disables)")
	fs.StringVar(&cfg.LogFile, "log.file", cfg.LogFile, "path to write rotated JSON logs to (empty logs to stderr)")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-4 (0=error, 4=debug)")
	return fs
}
