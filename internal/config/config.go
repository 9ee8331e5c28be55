// Package config loads SDKConfig (spec.md §6) via viper, grounded on
// CWBudde-go-pocket-tts's internal/config/config.go: pflag-bound
// defaults, an env prefix, and an optional config file, all merged by a
// single viper.Viper and unmarshaled into a typed struct.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SDKConfig is the runtime's top-level configuration (spec.md §6
// "SDKConfig (recognized options)").
type SDKConfig struct {
	ThreadCount      int    `mapstructure:"thread_count"`
	ModelDirectory   string `mapstructure:"model_directory"`
	MemoryLimitBytes int64  `mapstructure:"memory_limit_bytes"`
	LogLevel         string `mapstructure:"log_level"`
	EnableTelemetry  bool   `mapstructure:"enable_telemetry"`
	RegistryURL      string `mapstructure:"registry_url"`
	TelemetryDSN     string `mapstructure:"telemetry_dsn"`
}

// DefaultConfig returns spec-sane defaults: ThreadCount is capped at
// hardware concurrency per spec.md's SDKConfig note.
func DefaultConfig() SDKConfig {
	return SDKConfig{
		ThreadCount:      runtime.NumCPU(),
		ModelDirectory:   "models",
		MemoryLimitBytes: 4 << 30,
		LogLevel:         "info",
		EnableTelemetry:  false,
		RegistryURL:      "https://models.voiced.example/registry.json",
		TelemetryDSN:     "",
	}
}

// LoadOptions customizes Load's sources.
type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   SDKConfig
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// RegisterFlags adds cobra persistent flags matching SDKConfig's fields.
func RegisterFlags(fs *pflag.FlagSet, defaults SDKConfig) {
	fs.Int("thread-count", defaults.ThreadCount, "Inference thread count (capped at hardware concurrency)")
	fs.String("model-directory", defaults.ModelDirectory, "Directory holding the model registry and downloaded models")
	fs.Int64("memory-limit-bytes", defaults.MemoryLimitBytes, "Soft memory budget across all loaded models")
	fs.String("log-level", defaults.LogLevel, "Log level (error|warn|info|debug)")
	fs.Bool("enable-telemetry", defaults.EnableTelemetry, "Persist local run/span timing (never transmitted)")
	fs.String("registry-url", defaults.RegistryURL, "Model registry manifest URL")
	fs.String("telemetry-dsn", defaults.TelemetryDSN, "Postgres DSN for the local telemetry store")
}

// Load merges flags, VOICED_-prefixed env vars, and an optional YAML
// file into an SDKConfig. Precedence, highest first: flags set on the
// command line, env vars, the config file, then defaults.
func Load(opts LoadOptions) (SDKConfig, error) {
	v := viper.New()
	defaults := opts.Defaults
	if (defaults == SDKConfig{}) {
		defaults = DefaultConfig()
	}
	setDefaults(v, defaults)

	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return SDKConfig{}, fmt.Errorf("bind flags: %w", err)
		}
		registerAliases(v)
	}

	v.SetEnvPrefix("VOICED")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return SDKConfig{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("voiced")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return SDKConfig{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg SDKConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SDKConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ThreadCount <= 0 || cfg.ThreadCount > runtime.NumCPU() {
		cfg.ThreadCount = runtime.NumCPU()
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c SDKConfig) {
	v.SetDefault("thread_count", c.ThreadCount)
	v.SetDefault("model_directory", c.ModelDirectory)
	v.SetDefault("memory_limit_bytes", c.MemoryLimitBytes)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("enable_telemetry", c.EnableTelemetry)
	v.SetDefault("registry_url", c.RegistryURL)
	v.SetDefault("telemetry_dsn", c.TelemetryDSN)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("thread_count", "thread-count")
	v.RegisterAlias("model_directory", "model-directory")
	v.RegisterAlias("memory_limit_bytes", "memory-limit-bytes")
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("enable_telemetry", "enable-telemetry")
	v.RegisterAlias("registry_url", "registry-url")
	v.RegisterAlias("telemetry_dsn", "telemetry-dsn")
}

// Validate checks the recognized-option constraints spec.md §6 names.
func Validate(cfg SDKConfig) error {
	switch cfg.LogLevel {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("log_level must be one of error|warn|info|debug, got %q", cfg.LogLevel)
	}
	if cfg.ModelDirectory == "" {
		return fmt.Errorf("model_directory must not be empty")
	}
	if cfg.MemoryLimitBytes <= 0 {
		return fmt.Errorf("memory_limit_bytes must be positive")
	}
	if cfg.ThreadCount <= 0 {
		return fmt.Errorf("thread_count must be positive")
	}
	return nil
}
