package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/pflag"
)

type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(defaults SDKConfig) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	return &fakeBinder{fs: fs}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ThreadCount != runtime.NumCPU() {
		t.Errorf("ThreadCount = %d; want %d", cfg.ThreadCount, runtime.NumCPU())
	}
	if cfg.ModelDirectory != "models" {
		t.Errorf("ModelDirectory = %q; want %q", cfg.ModelDirectory, "models")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}
	if cfg.EnableTelemetry {
		t.Error("EnableTelemetry = true; want false")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unrecognized log level")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("Validate(DefaultConfig()): %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ModelDirectory != defaults.ModelDirectory {
		t.Errorf("ModelDirectory = %q; want %q", cfg.ModelDirectory, defaults.ModelDirectory)
	}
	if cfg.LogLevel != defaults.LogLevel {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, defaults.LogLevel)
	}
}

func TestLoadFlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	if err := fs.Parse([]string{"--log-level=debug", "--enable-telemetry=true"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: &fakeBinder{fs: fs}, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
	if !cfg.EnableTelemetry {
		t.Error("EnableTelemetry = false; want true")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VOICED_LOG_LEVEL", "warn")
	t.Setenv("VOICED_MODEL_DIRECTORY", "/tmp/models")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}
	if cfg.ModelDirectory != "/tmp/models" {
		t.Errorf("ModelDirectory = %q; want %q", cfg.ModelDirectory, "/tmp/models")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "voiced.yaml")
	content := "log_level: error\nmodel_directory: /srv/models\nenable_telemetry: true\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}
	if cfg.ModelDirectory != "/srv/models" {
		t.Errorf("ModelDirectory = %q; want %q", cfg.ModelDirectory, "/srv/models")
	}
	if !cfg.EnableTelemetry {
		t.Error("EnableTelemetry = false; want true")
	}
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: "/nonexistent/voiced.yaml", Defaults: DefaultConfig()})
	if err == nil {
		t.Error("Load() = nil; want error for a missing explicit config file")
	}
}

func TestLoadNilCmd(t *testing.T) {
	cfg, err := Load(LoadOptions{Cmd: nil, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_ = cfg.ModelDirectory
}

func TestLoadClampsThreadCountAboveHardwareConcurrency(t *testing.T) {
	defaults := DefaultConfig()
	defaults.ThreadCount = runtime.NumCPU() * 100
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ThreadCount > runtime.NumCPU() {
		t.Errorf("ThreadCount = %d; want <= %d", cfg.ThreadCount, runtime.NumCPU())
	}
}
