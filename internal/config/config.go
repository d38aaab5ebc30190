// Package config loads runtime configuration for the phloem CLI and any
// embedding program: framework preference, hardware filtering, logging.
package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/parallel"
)

// Config is the YAML-backed runtime configuration.
type Config struct {
	// Frameworks is the preference order for backend construction. Known
	// names are "webgpu" and "native"; a framework that enumerates no
	// hardware is skipped.
	Frameworks []string `yaml:"frameworks"`

	// Hardware restricts the backend to one hardware class: "cpu", "gpu"
	// or "accelerator". Empty means no restriction.
	Hardware string `yaml:"hardware"`

	// LogLevel is a zerolog level name: "debug", "info", "warn", "error"
	// or "disabled".
	LogLevel string `yaml:"log_level"`

	// Parallel tunes the host compute kernels.
	Parallel struct {
		Enabled    bool `yaml:"enabled"`
		NumWorkers int  `yaml:"num_workers"`
	} `yaml:"parallel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{
		Frameworks: []string{"webgpu", "native"},
		LogLevel:   "info",
	}
	cfg.Parallel.Enabled = true
	return cfg
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Level parses the configured log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// ParallelConfig maps the parallel section onto the host-kernel
// configuration. Zero values keep the defaults.
func (c Config) ParallelConfig() parallel.Config {
	pc := parallel.DefaultConfig()
	pc.Enabled = c.Parallel.Enabled
	if c.Parallel.NumWorkers > 0 {
		pc.NumWorkers = c.Parallel.NumWorkers
	}
	return pc
}

// Kind maps the hardware field to a hardware class. The second result is
// false when no restriction is configured.
func (c Config) Kind() (framework.HardwareKind, bool, error) {
	switch c.Hardware {
	case "":
		return 0, false, nil
	case "cpu":
		return framework.CPU, true, nil
	case "gpu":
		return framework.GPU, true, nil
	case "accelerator":
		return framework.Accelerator, true, nil
	default:
		return 0, false, fmt.Errorf("config: unknown hardware class %q", c.Hardware)
	}
}
