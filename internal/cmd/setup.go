package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/crucible/internal/config"
	"github.com/harrison/crucible/internal/logger"
	"github.com/harrison/crucible/internal/recovery"
	"github.com/harrison/crucible/internal/refiner"
	"github.com/harrison/crucible/internal/sandbox"
)

// loadConfig reads --config (or .crucible/config.yaml), applies flags that
// were explicitly set and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var flags config.Flags
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		flags.LogLevel = &v
	}
	if f := cmd.Flags().Lookup("log-dir"); f != nil && f.Changed {
		v := f.Value.String()
		flags.LogDir = &v
	}
	if f := cmd.Flags().Lookup("toolchain"); f != nil && f.Changed {
		v := f.Value.String()
		flags.Toolchain = &v
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		v, err := time.ParseDuration(f.Value.String())
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", f.Value.String(), err)
		}
		flags.Timeout = &v
	}
	if f := cmd.Flags().Lookup("max-iterations"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt("max-iterations")
		flags.MaxIterations = &v
	}
	if f := cmd.Flags().Lookup("pass-threshold"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetFloat64("pass-threshold")
		flags.PassThreshold = &v
	}
	if f := cmd.Flags().Lookup("agent"); f != nil && f.Changed {
		v := f.Value.String()
		flags.AgentCommand = &v
	}
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveToolchain looks up the configured profile and applies config
// overrides. A name that is not built in must be fully defined in config.
func resolveToolchain(cfg *config.Config) (sandbox.Toolchain, error) {
	name := cfg.Sandbox.Toolchain
	override, hasOverride := cfg.Sandbox.Toolchains[name]

	tc, err := sandbox.LookupToolchain(name)
	if err != nil && !hasOverride {
		return sandbox.Toolchain{}, err
	}
	if err != nil {
		tc = sandbox.Toolchain{Name: name}
	}
	if hasOverride {
		tc = tc.Merge(sandbox.Toolchain{
			CandidateFile: override.CandidateFile,
			SuiteFile:     override.SuiteFile,
			Build:         override.Build,
			Test:          override.Test,
			Files:         override.Files,
		})
	}
	return tc, tc.Validate()
}

func sandboxConfig(cfg *config.Config, tc sandbox.Toolchain) sandbox.Config {
	return sandbox.Config{
		WorkRoot:       cfg.Sandbox.WorkRoot,
		HardCap:        cfg.Sandbox.HardCap,
		Toolchain:      tc,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	}
}

func sandboxOptions(cfg *config.Config) sandbox.Options {
	return sandbox.Options{
		Timeout:          cfg.Sandbox.Timeout,
		MemoryLimitBytes: cfg.Sandbox.MemoryLimitMB << 20,
		CaptureOutput:    cfg.Sandbox.CaptureOutput,
	}
}

func retryConfig(cfg *config.Config) recovery.RetryConfig {
	return recovery.RetryConfig{
		MaxRetries:    cfg.Retry.MaxRetries,
		InitialDelay:  cfg.Retry.InitialDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		Jitter:        cfg.Retry.Jitter,
	}
}

func refinerConfig(cfg *config.Config) refiner.Config {
	return refiner.Config{
		MaxIterations:        cfg.Refiner.MaxIterations,
		PassThreshold:        cfg.Refiner.PassThreshold,
		ConvergenceThreshold: cfg.Refiner.ConvergenceThreshold,
		PlateauWidth:         cfg.Refiner.PlateauWidth,
	}
}

// newLogger builds the console logger and, unless disabled, the run-log
// file logger. The returned close func is always safe to call.
func newLogger(cmd *cobra.Command, cfg *config.Config, fileLog bool) (logger.Logger, func(), error) {
	console := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	if !fileLog {
		return console, func() {}, nil
	}
	fl, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	return logger.NewMultiLogger(console, fl), func() { fl.Close() }, nil
}

// NewToolchainsCommand lists the built-in and configured toolchain profiles.
func NewToolchainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toolchains",
		Short: "List available toolchain profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			names := sandbox.ToolchainNames()
			for name := range cfg.Sandbox.Toolchains {
				if _, err := sandbox.LookupToolchain(name); err != nil {
					names = append(names, name)
				}
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				c := *cfg
				c.Sandbox.Toolchain = name
				tc, err := resolveToolchain(&c)
				if err != nil {
					fmt.Fprintf(out, "%-8s  invalid: %v\n", name, err)
					continue
				}
				marker := " "
				if name == cfg.Sandbox.Toolchain {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-8s  %s + %s\n", marker, name, tc.CandidateFile, tc.SuiteFile)
				if tc.Build != "" {
					fmt.Fprintf(out, "    build: %s\n", tc.Build)
				}
				fmt.Fprintf(out, "    test:  %s\n", tc.Test)
			}
			return nil
		},
	}
}
