package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SandboxConfig controls where and how candidates are executed.
type SandboxConfig struct {
	// WorkRoot is the parent directory of per-run workspaces (empty = system temp dir)
	WorkRoot string `yaml:"work_root"`

	// HardCap bounds every build and test step
	HardCap time.Duration `yaml:"hard_cap"`

	// Timeout is the per-run test timeout
	Timeout time.Duration `yaml:"timeout"`

	// MemoryLimitMB caps the address space of child processes (0 = unlimited)
	MemoryLimitMB int64 `yaml:"memory_limit_mb"`

	// Toolchain names the build/test profile (go, python, elixir, shell)
	Toolchain string `yaml:"toolchain"`

	// CaptureOutput keeps raw runner output in execution results
	CaptureOutput bool `yaml:"capture_output"`

	// MaxOutputBytes caps captured output per step (0 = 1 MiB)
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// Toolchains overrides or adds toolchain profiles by name
	Toolchains map[string]ToolchainConfig `yaml:"toolchains"`
}

// ToolchainConfig overrides fields of a toolchain profile. Empty fields keep
// the built-in value.
type ToolchainConfig struct {
	CandidateFile string            `yaml:"candidate_file"`
	SuiteFile     string            `yaml:"suite_file"`
	Build         string            `yaml:"build"`
	Test          string            `yaml:"test"`
	Files         map[string]string `yaml:"files"`
}

// RefinerConfig controls the refinement loop.
type RefinerConfig struct {
	MaxIterations        int     `yaml:"max_iterations"`
	PassThreshold        float64 `yaml:"pass_threshold"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	PlateauWidth         float64 `yaml:"plateau_width"`
}

// RetryConfig controls retries of transient sandbox and agent failures.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// AgentConfig configures the external CLI that rewrites candidates.
type AgentConfig struct {
	// Command is the agent command line; the prompt is passed on stdin
	Command string `yaml:"command"`

	// Timeout bounds one agent invocation
	Timeout time.Duration `yaml:"timeout"`
}

// EvaluatorConfig configures `crucible eval`.
type EvaluatorConfig struct {
	// Command receives the expression as its last argument
	Command string `yaml:"command"`

	// Timeout is the default per-expression timeout
	Timeout time.Duration `yaml:"timeout"`
}

// Config represents crucible configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Refiner   RefinerConfig   `yaml:"refiner"`
	Retry     RetryConfig     `yaml:"retry"`
	Agent     AgentConfig     `yaml:"agent"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   filepath.Join(".crucible", "logs"),
		Sandbox: SandboxConfig{
			HardCap:       5 * time.Minute,
			Timeout:       30 * time.Second,
			Toolchain:     "python",
			CaptureOutput: true,
		},
		Refiner: RefinerConfig{
			MaxIterations:        5,
			PassThreshold:        1.0,
			ConvergenceThreshold: 0.95,
			PlateauWidth:         0.05,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
		Agent: AgentConfig{
			Command: "claude -p",
			Timeout: 10 * time.Minute,
		},
		Evaluator: EvaluatorConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// yamlConfig mirrors Config with durations as strings and pointers where
// an explicit zero must be distinguishable from an absent key.
type yamlConfig struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
	Sandbox  struct {
		WorkRoot       string                     `yaml:"work_root"`
		HardCap        string                     `yaml:"hard_cap"`
		Timeout        string                     `yaml:"timeout"`
		MemoryLimitMB  *int64                     `yaml:"memory_limit_mb"`
		Toolchain      string                     `yaml:"toolchain"`
		CaptureOutput  *bool                      `yaml:"capture_output"`
		MaxOutputBytes *int                       `yaml:"max_output_bytes"`
		Toolchains     map[string]ToolchainConfig `yaml:"toolchains"`
	} `yaml:"sandbox"`
	Refiner struct {
		MaxIterations        *int     `yaml:"max_iterations"`
		PassThreshold        *float64 `yaml:"pass_threshold"`
		ConvergenceThreshold *float64 `yaml:"convergence_threshold"`
		PlateauWidth         *float64 `yaml:"plateau_width"`
	} `yaml:"refiner"`
	Retry struct {
		MaxRetries    *int     `yaml:"max_retries"`
		InitialDelay  string   `yaml:"initial_delay"`
		MaxDelay      string   `yaml:"max_delay"`
		BackoffFactor *float64 `yaml:"backoff_factor"`
		Jitter        *bool    `yaml:"jitter"`
	} `yaml:"retry"`
	Agent struct {
		Command string `yaml:"command"`
		Timeout string `yaml:"timeout"`
	} `yaml:"agent"`
	Evaluator struct {
		Command string `yaml:"command"`
		Timeout string `yaml:"timeout"`
	} `yaml:"evaluator"`
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.LogDir != "" {
		cfg.LogDir = y.LogDir
	}

	// Sandbox
	if y.Sandbox.WorkRoot != "" {
		cfg.Sandbox.WorkRoot = y.Sandbox.WorkRoot
	}
	if err := setDuration(&cfg.Sandbox.HardCap, "sandbox.hard_cap", y.Sandbox.HardCap); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Sandbox.Timeout, "sandbox.timeout", y.Sandbox.Timeout); err != nil {
		return nil, err
	}
	if y.Sandbox.MemoryLimitMB != nil {
		cfg.Sandbox.MemoryLimitMB = *y.Sandbox.MemoryLimitMB
	}
	if y.Sandbox.Toolchain != "" {
		cfg.Sandbox.Toolchain = y.Sandbox.Toolchain
	}
	if y.Sandbox.CaptureOutput != nil {
		cfg.Sandbox.CaptureOutput = *y.Sandbox.CaptureOutput
	}
	if y.Sandbox.MaxOutputBytes != nil {
		cfg.Sandbox.MaxOutputBytes = *y.Sandbox.MaxOutputBytes
	}
	if len(y.Sandbox.Toolchains) > 0 {
		cfg.Sandbox.Toolchains = y.Sandbox.Toolchains
	}

	// Refiner
	if y.Refiner.MaxIterations != nil {
		cfg.Refiner.MaxIterations = *y.Refiner.MaxIterations
	}
	if y.Refiner.PassThreshold != nil {
		cfg.Refiner.PassThreshold = *y.Refiner.PassThreshold
	}
	if y.Refiner.ConvergenceThreshold != nil {
		cfg.Refiner.ConvergenceThreshold = *y.Refiner.ConvergenceThreshold
	}
	if y.Refiner.PlateauWidth != nil {
		cfg.Refiner.PlateauWidth = *y.Refiner.PlateauWidth
	}

	// Retry
	if y.Retry.MaxRetries != nil {
		cfg.Retry.MaxRetries = *y.Retry.MaxRetries
	}
	if err := setDuration(&cfg.Retry.InitialDelay, "retry.initial_delay", y.Retry.InitialDelay); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Retry.MaxDelay, "retry.max_delay", y.Retry.MaxDelay); err != nil {
		return nil, err
	}
	if y.Retry.BackoffFactor != nil {
		cfg.Retry.BackoffFactor = *y.Retry.BackoffFactor
	}
	if y.Retry.Jitter != nil {
		cfg.Retry.Jitter = *y.Retry.Jitter
	}

	// Agent and evaluator
	if y.Agent.Command != "" {
		cfg.Agent.Command = y.Agent.Command
	}
	if err := setDuration(&cfg.Agent.Timeout, "agent.timeout", y.Agent.Timeout); err != nil {
		return nil, err
	}
	if y.Evaluator.Command != "" {
		cfg.Evaluator.Command = y.Evaluator.Command
	}
	if err := setDuration(&cfg.Evaluator.Timeout, "evaluator.timeout", y.Evaluator.Timeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDuration(dst *time.Duration, key, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads configuration from .crucible/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".crucible", "config.yaml"))
}

// Flags holds CLI overrides. Nil fields leave the configuration untouched.
type Flags struct {
	LogLevel      *string
	LogDir        *string
	Toolchain     *string
	Timeout       *time.Duration
	MaxIterations *int
	PassThreshold *float64
	AgentCommand  *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f Flags) {
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.Toolchain != nil {
		c.Sandbox.Toolchain = *f.Toolchain
	}
	if f.Timeout != nil {
		c.Sandbox.Timeout = *f.Timeout
	}
	if f.MaxIterations != nil {
		c.Refiner.MaxIterations = *f.MaxIterations
	}
	if f.PassThreshold != nil {
		c.Refiner.PassThreshold = *f.PassThreshold
	}
	if f.AgentCommand != nil {
		c.Agent.Command = *f.AgentCommand
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Sandbox.HardCap <= 0 {
		return fmt.Errorf("sandbox.hard_cap must be > 0, got %v", c.Sandbox.HardCap)
	}
	// Timeout 0 means "use the hard cap"; negative is invalid
	if c.Sandbox.Timeout < 0 {
		return fmt.Errorf("sandbox.timeout must be >= 0, got %v", c.Sandbox.Timeout)
	}
	if c.Sandbox.MemoryLimitMB < 0 {
		return fmt.Errorf("sandbox.memory_limit_mb must be >= 0, got %d", c.Sandbox.MemoryLimitMB)
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be >= 0, got %d", c.Sandbox.MaxOutputBytes)
	}
	if strings.TrimSpace(c.Sandbox.Toolchain) == "" {
		return fmt.Errorf("sandbox.toolchain cannot be empty")
	}

	if c.Refiner.MaxIterations < 1 {
		return fmt.Errorf("refiner.max_iterations must be >= 1, got %d", c.Refiner.MaxIterations)
	}
	if c.Refiner.PassThreshold <= 0 || c.Refiner.PassThreshold > 1 {
		return fmt.Errorf("refiner.pass_threshold must be in (0, 1], got %v", c.Refiner.PassThreshold)
	}
	if c.Refiner.ConvergenceThreshold <= 0 || c.Refiner.ConvergenceThreshold > 1 {
		return fmt.Errorf("refiner.convergence_threshold must be in (0, 1], got %v", c.Refiner.ConvergenceThreshold)
	}
	if c.Refiner.PlateauWidth <= 0 || c.Refiner.PlateauWidth > 1 {
		return fmt.Errorf("refiner.plateau_width must be in (0, 1], got %v", c.Refiner.PlateauWidth)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry.initial_delay must be > 0, got %v", c.Retry.InitialDelay)
	}
	if c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry.max_delay must be > 0, got %v", c.Retry.MaxDelay)
	}
	if c.Retry.BackoffFactor <= 1.0 {
		return fmt.Errorf("retry.backoff_factor must be > 1.0, got %v", c.Retry.BackoffFactor)
	}

	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent.timeout must be >= 0, got %v", c.Agent.Timeout)
	}
	if c.Evaluator.Timeout < 0 {
		return fmt.Errorf("evaluator.timeout must be >= 0, got %v", c.Evaluator.Timeout)
	}

	return nil
}
