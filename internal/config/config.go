// Package config holds the ingestion stage settings and their YAML form.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/born-ml/feed/internal/memory"
	"github.com/born-ml/feed/internal/parallel"
	"gopkg.in/yaml.v3"
)

// Backends a stage can run on.
const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Config describes one ingestion stage.
type Config struct {
	Name                  string         `yaml:"name"`
	Device                string         `yaml:"device"`                  // cpu, gpu
	DeviceID              int            `yaml:"device_id"`               // ignored on cpu
	Blocking              bool           `yaml:"blocking"`                // consumer waits for data instead of failing
	NoCopy                bool           `yaml:"no_copy"`                 // alias producer memory unless a call overrides it
	RejectMixedContiguity bool           `yaml:"reject_mixed_contiguity"` // fail instead of falling back to a copy
	Prefill               int            `yaml:"prefill"`                 // pooled containers allocated up front
	Pinned                bool           `yaml:"pinned"`                  // page-locked host containers (cpu only)
	Parallel              ParallelConfig `yaml:"parallel"`
}

// ParallelConfig tunes the host-side gather of scattered batches.
type ParallelConfig struct {
	Enabled      bool `yaml:"enabled"`
	Workers      int  `yaml:"workers"`
	MinChunkSize int  `yaml:"min_chunk_size"`
}

// Default returns the configuration of a blocking, copying CPU stage.
func Default() Config {
	p := parallel.DefaultConfig()
	return Config{
		Name:     "input",
		Device:   DeviceCPU,
		Blocking: true,
		Prefill:  2,
		Parallel: ParallelConfig{
			Enabled:      p.Enabled,
			Workers:      p.NumWorkers,
			MinChunkSize: p.MinChunkSize,
		},
	}
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Validate checks field ranges and combinations.
func (c Config) Validate() error {
	switch c.Device {
	case DeviceCPU:
	case DeviceGPU:
		if c.DeviceID < 0 {
			return fmt.Errorf("%w: device_id %d", ErrInvalid, c.DeviceID)
		}
		if c.Pinned {
			return fmt.Errorf("%w: pinned applies to cpu stages only", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown device %q", ErrInvalid, c.Device)
	}
	if c.Prefill < 0 {
		return fmt.Errorf("%w: prefill %d", ErrInvalid, c.Prefill)
	}
	if c.Parallel.Workers < 0 || c.Parallel.MinChunkSize < 0 {
		return fmt.Errorf("%w: negative parallel settings", ErrInvalid)
	}
	return nil
}

// Space returns the memory space the stage's containers live in.
func (c Config) Space() memory.Space {
	if c.Device == DeviceGPU {
		return memory.DeviceSpace(c.DeviceID)
	}
	return memory.HostSpace(c.Pinned)
}

// ParallelConfig converts the gather settings.
func (c Config) ParallelConfig() parallel.Config {
	workers := c.Parallel.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return parallel.Config{
		Enabled:      c.Parallel.Enabled,
		NumWorkers:   workers,
		MinChunkSize: c.Parallel.MinChunkSize,
	}
}
