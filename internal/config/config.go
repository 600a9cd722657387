// Package config provides configuration loading and validation for the
// channel pool and its per-method affinity policies.
// Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/chanpool-io/chanpool/internal/affinity"
)

// Common errors.
var (
	ErrNoTarget        = errors.New("config: pool target is required")
	ErrBadMaxSize      = errors.New("config: pool maxSize must be positive")
	ErrDuplicateMethod = errors.New("config: duplicate method")
	ErrMissingKeyPath  = errors.New("config: keyPath is required when command is not none")
)

// Config holds all configuration for an affinity-aware channel pool.
type Config struct {
	Pool          PoolConfig          `yaml:"pool"`
	Affinity      AffinityConfig      `yaml:"affinity"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type PoolConfig struct {
	Target        string `yaml:"target" env:"CHANPOOL_TARGET"`
	MaxSize       int    `yaml:"maxSize" env:"CHANPOOL_MAX_SIZE"`
	DialTimeoutMs int64  `yaml:"dialTimeoutMs" env:"CHANPOOL_DIAL_TIMEOUT_MS"`
}

type AffinityConfig struct {
	Methods []MethodConfig `yaml:"methods"`
}

// MethodConfig is the per-method affinity policy as written in the config
// file. Method may be given with or without the leading slash.
type MethodConfig struct {
	Method  string `yaml:"method"`
	Command string `yaml:"command"`
	KeyPath string `yaml:"keyPath"`
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel" env:"CHANPOOL_LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"CHANPOOL_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxSize:       4,
			DialTimeoutMs: 10000, // 10 seconds
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result. A missing path loads defaults plus environment
// overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHANPOOL_TARGET"); v != "" {
		c.Pool.Target = v
	}
	if v := os.Getenv("CHANPOOL_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pool.MaxSize = n
		}
	}
	if v := os.Getenv("CHANPOOL_DIAL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Pool.DialTimeoutMs = n
		}
	}
	if v := os.Getenv("CHANPOOL_LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("CHANPOOL_LOG_FORMAT"); v != "" {
		c.Observability.LogFormat = v
	}
}

// Validate checks the pool settings and compiles every method's command
// and key path, so misconfiguration fails at load time rather than on the
// call path.
func (c *Config) Validate() error {
	if c.Pool.Target == "" {
		return ErrNoTarget
	}
	if c.Pool.MaxSize <= 0 {
		return ErrBadMaxSize
	}

	seen := make(map[string]struct{}, len(c.Affinity.Methods))
	for _, m := range c.Affinity.Methods {
		if m.Method == "" {
			return errors.New("config: method name is required")
		}
		name := NormalizeMethod(m.Method)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
		}
		seen[name] = struct{}{}

		cmd, err := affinity.ParseCommand(m.Command)
		if err != nil {
			return fmt.Errorf("config: method %s: %w", name, err)
		}
		if cmd == affinity.CommandNone {
			continue
		}
		if m.KeyPath == "" {
			return fmt.Errorf("%w: method %s", ErrMissingKeyPath, name)
		}
		if _, err := affinity.CompilePath(m.KeyPath); err != nil {
			return fmt.Errorf("config: method %s: %w", name, err)
		}
	}
	return nil
}

// NormalizeMethod returns the method path in the form gRPC hands to
// interceptors: "/package.Service/Method".
func NormalizeMethod(method string) string {
	if method == "" || method[0] == '/' {
		return method
	}
	return "/" + method
}
