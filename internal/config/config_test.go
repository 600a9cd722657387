package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Pool.MaxSize != 4 {
		t.Errorf("expected default max size 4, got %d", cfg.Pool.MaxSize)
	}
	if cfg.Pool.DialTimeoutMs != 10000 {
		t.Errorf("expected default dial timeout 10000ms, got %d", cfg.Pool.DialTimeoutMs)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Observability.LogLevel)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chanpool.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
pool:
  target: dns:///sessions.example.com:443
  maxSize: 8
affinity:
  methods:
    - method: example.Sessions/CreateSession
      command: bind
      keyPath: session.name
    - method: /example.Sessions/GetSession
      command: bound
      keyPath: name
    - method: example.Sessions/DeleteSession
      command: unbind
      keyPath: name
    - method: example.Sessions/ListSessions
      command: none
observability:
  logLevel: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dns:///sessions.example.com:443", cfg.Pool.Target)
	assert.Equal(t, 8, cfg.Pool.MaxSize)
	assert.Len(t, cfg.Affinity.Methods, 4)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	// Defaults survive partial files.
	assert.Equal(t, int64(10000), cfg.Pool.DialTimeoutMs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
pool:
  target: dns:///original:443
  maxSize: 2
`)
	t.Setenv("CHANPOOL_TARGET", "dns:///override:443")
	t.Setenv("CHANPOOL_MAX_SIZE", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dns:///override:443", cfg.Pool.Target)
	assert.Equal(t, 16, cfg.Pool.MaxSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing target",
			mutate:  func(c *Config) { c.Pool.Target = "" },
			wantErr: ErrNoTarget,
		},
		{
			name:    "zero max size",
			mutate:  func(c *Config) { c.Pool.MaxSize = 0 },
			wantErr: ErrBadMaxSize,
		},
		{
			name: "duplicate method",
			mutate: func(c *Config) {
				c.Affinity.Methods = []MethodConfig{
					{Method: "/svc/M", Command: "bound", KeyPath: "name"},
					{Method: "svc/M", Command: "bind", KeyPath: "name"},
				}
			},
			wantErr: ErrDuplicateMethod,
		},
		{
			name: "missing key path",
			mutate: func(c *Config) {
				c.Affinity.Methods = []MethodConfig{
					{Method: "/svc/M", Command: "bind"},
				}
			},
			wantErr: ErrMissingKeyPath,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pool.Target = "dns:///x:443"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRejectsBadCommandAndPath(t *testing.T) {
	cfg := Default()
	cfg.Pool.Target = "dns:///x:443"
	cfg.Affinity.Methods = []MethodConfig{{Method: "/svc/M", Command: "rebind", KeyPath: "name"}}
	require.Error(t, cfg.Validate())

	cfg.Affinity.Methods = []MethodConfig{{Method: "/svc/M", Command: "bind", KeyPath: "a..b"}}
	require.Error(t, cfg.Validate())
}

func TestValidateNoneSkipsKeyPath(t *testing.T) {
	cfg := Default()
	cfg.Pool.Target = "dns:///x:443"
	cfg.Affinity.Methods = []MethodConfig{{Method: "/svc/M", Command: "none"}}
	require.NoError(t, cfg.Validate())
}

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, "/svc/M", NormalizeMethod("svc/M"))
	assert.Equal(t, "/svc/M", NormalizeMethod("/svc/M"))
	assert.Equal(t, "", NormalizeMethod(""))
}
