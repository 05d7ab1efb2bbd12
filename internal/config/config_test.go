package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogDir != filepath.Join(".crucible", "logs") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Refiner.MaxIterations != 5 {
		t.Errorf("Refiner.MaxIterations = %d, want 5", cfg.Refiner.MaxIterations)
	}
	if cfg.Retry.InitialDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("Retry delays = %v/%v, want 1s/30s", cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

// TestLoadConfigMissingFile returns defaults when no file exists
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestLoadConfigValidFile tests loading a valid YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `log_level: debug
sandbox:
  timeout: 45s
  hard_cap: 2m
  memory_limit_mb: 256
  toolchain: go
  capture_output: false
  toolchains:
    go:
      test: "{dir}/candidate.test -test.v -test.run TestAdd"
refiner:
  max_iterations: 8
  pass_threshold: 0.9
retry:
  max_retries: 0
  initial_delay: 250ms
  jitter: false
agent:
  command: "my-agent --stdin"
  timeout: 90s
evaluator:
  command: "node -e"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Sandbox.HardCap)
	assert.Equal(t, int64(256), cfg.Sandbox.MemoryLimitMB)
	assert.Equal(t, "go", cfg.Sandbox.Toolchain)
	assert.False(t, cfg.Sandbox.CaptureOutput)
	assert.Equal(t, "{dir}/candidate.test -test.v -test.run TestAdd", cfg.Sandbox.Toolchains["go"].Test)
	assert.Equal(t, 8, cfg.Refiner.MaxIterations)
	assert.Equal(t, 0.9, cfg.Refiner.PassThreshold)
	assert.Equal(t, 0.95, cfg.Refiner.ConvergenceThreshold, "unset keys keep defaults")
	assert.Equal(t, 0, cfg.Retry.MaxRetries, "explicit zero must override the default")
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.False(t, cfg.Retry.Jitter)
	assert.Equal(t, "my-agent --stdin", cfg.Agent.Command)
	assert.Equal(t, 90*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, "node -e", cfg.Evaluator.Command)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "sandbox: [unterminated", "failed to parse config file"},
		{"bad duration", "sandbox:\n  timeout: soon\n", "invalid sandbox.timeout format"},
		{"bad retry delay", "retry:\n  max_delay: 3 parsecs\n", "invalid retry.max_delay format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".crucible"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".crucible", "config.yaml"), []byte("log_level: warn\n"), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	level := "trace"
	iters := 2
	timeout := 3 * time.Second

	cfg.MergeWithFlags(Flags{LogLevel: &level, MaxIterations: &iters, Timeout: &timeout})

	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Refiner.MaxIterations)
	assert.Equal(t, 3*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "python", cfg.Sandbox.Toolchain, "nil flags leave values alone")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log_level"},
		{"hard cap", func(c *Config) { c.Sandbox.HardCap = 0 }, "sandbox.hard_cap"},
		{"negative timeout", func(c *Config) { c.Sandbox.Timeout = -time.Second }, "sandbox.timeout"},
		{"memory", func(c *Config) { c.Sandbox.MemoryLimitMB = -1 }, "sandbox.memory_limit_mb"},
		{"toolchain", func(c *Config) { c.Sandbox.Toolchain = " " }, "sandbox.toolchain"},
		{"iterations", func(c *Config) { c.Refiner.MaxIterations = 0 }, "refiner.max_iterations"},
		{"pass threshold", func(c *Config) { c.Refiner.PassThreshold = 1.5 }, "refiner.pass_threshold"},
		{"convergence", func(c *Config) { c.Refiner.ConvergenceThreshold = 0 }, "refiner.convergence_threshold"},
		{"plateau", func(c *Config) { c.Refiner.PlateauWidth = 0 }, "refiner.plateau_width"},
		{"retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"initial delay", func(c *Config) { c.Retry.InitialDelay = 0 }, "retry.initial_delay"},
		{"factor", func(c *Config) { c.Retry.BackoffFactor = 1.0 }, "retry.backoff_factor"},
		{"agent timeout", func(c *Config) { c.Agent.Timeout = -1 }, "agent.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}
