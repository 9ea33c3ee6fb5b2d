package main

import (
	"log/slog"
	"testing"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, code := parseFlags([]string{})
	if exit {
		t.Fatalf("unexpected exit with code %d", code)
	}
	if cfg.TopologyPath != "" {
		t.Errorf("TopologyPath = %q, want empty", cfg.TopologyPath)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, want empty", cfg.LogFile)
	}
	if cfg.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", cfg.Verbosity)
	}
}

func TestParseFlagsAllFlags(t *testing.T) {
	args := []string{
		"-topology", "/tmp/topology.toml",
		"-metrics.addr", ":9090",
		"-log.file", "/tmp/backrunner.log",
		"-verbosity", "4",
	}
	cfg, exit, _ := parseFlags(args)
	if exit {
		t.Fatal("unexpected exit")
	}
	if cfg.TopologyPath != "/tmp/topology.toml" {
		t.Errorf("TopologyPath = %q, want /tmp/topology.toml", cfg.TopologyPath)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.LogFile != "/tmp/backrunner.log" {
		t.Errorf("LogFile = %q, want /tmp/backrunner.log", cfg.LogFile)
	}
	if cfg.Verbosity != 4 {
		t.Errorf("Verbosity = %d, want 4", cfg.Verbosity)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	_, exit, code := parseFlags([]string{"-version"})
	if !exit {
		t.Fatal("expected exit for -version")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestParseFlagsInvalidFlag(t *testing.T) {
	_, exit, code := parseFlags([]string{"-unknown-flag"})
	if !exit {
		t.Fatal("expected exit for unknown flag")
	}
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestRunMissingTopologyExitsTwo(t *testing.T) {
	code := run([]string{})
	if code != 2 {
		t.Errorf("run([]) = %d, want 2", code)
	}
}

func TestRunUnreadableTopologyExitsOne(t *testing.T) {
	code := run([]string{"-topology", "/nonexistent/path/topology.toml"})
	if code != 1 {
		t.Errorf("run with missing file = %d, want 1", code)
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      slog.Level
	}{
		{0, slog.LevelError},
		{1, slog.LevelWarn},
		{2, slog.LevelInfo},
		{3, slog.LevelDebug},
		{4, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := verbosityToLevel(tt.verbosity); got != tt.want {
			t.Errorf("verbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}
