// Package config handles cppsim.toml configuration.
package config

import (
	"context"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/cppsim"
	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/sim"
)

// Backend names accepted in [memory].backend.
const (
	BackendSlice  = "slice"
	BackendWazero = "wazero"
)

// Config represents a cppsim.toml file.
type Config struct {
	Memory     Memory     `toml:"memory"`
	Simulation Simulation `toml:"simulation"`
	AutoRun    AutoRun    `toml:"autorun"`
	Log        Log        `toml:"log"`
}

// Memory configures region capacities and the byte store backend.
type Memory struct {
	Backend   string `toml:"backend"`
	Static    uint32 `toml:"static"`
	Stack     uint32 `toml:"stack"`
	Heap      uint32 `toml:"heap"`
	Temporary uint32 `toml:"temporary"`
}

// Simulation configures a run.
type Simulation struct {
	Seed  int64  `toml:"seed"`
	Input string `toml:"input"`
}

// AutoRun configures batched running.
type AutoRun struct {
	Batch     Duration `toml:"batch"`
	After     Duration `toml:"after"`
	StepLimit int      `toml:"step-limit"`
}

// Log configures the CLI logger.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration is a time.Duration written as a string like "10ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	l := memory.DefaultLayout()
	return &Config{
		Memory: Memory{
			Backend:   BackendSlice,
			Static:    l.Static,
			Stack:     l.Stack,
			Heap:      l.Heap,
			Temporary: l.Temporary,
		},
		Simulation: Simulation{Seed: 1},
		AutoRun:    AutoRun{Batch: Duration{10 * time.Millisecond}},
		Log:        Log{Level: "warn"},
	}
}

// Load reads and parses a cppsim.toml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("cannot read "+path, err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Config("parse error", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(undecoded[0].String()).
			Detail("unknown key").Build()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	switch c.Memory.Backend {
	case BackendSlice, BackendWazero:
	default:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("memory", "backend").
			Detail("unknown backend %q", c.Memory.Backend).Build()
	}
	if err := c.Layout().Validate(); err != nil {
		return err
	}
	if c.AutoRun.Batch.Duration < 0 || c.AutoRun.After.Duration < 0 || c.AutoRun.StepLimit < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("autorun").
			Detail("batch, after and step-limit must not be negative").Build()
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Config("invalid log level "+c.Log.Level, err)
	}
	return nil
}

// Layout returns the configured memory layout.
func (c *Config) Layout() memory.Layout {
	return memory.Layout{
		Static:    c.Memory.Static,
		Stack:     c.Memory.Stack,
		Heap:      c.Memory.Heap,
		Temporary: c.Memory.Temporary,
	}
}

// Store creates the configured byte store. The returned function releases
// it.
func (c *Config) Store(ctx context.Context) (cppsim.ByteStore, func(), error) {
	size := c.Layout().Addressable()
	if c.Memory.Backend == BackendWazero {
		ws, err := memory.NewWazeroStore(ctx, size)
		if err != nil {
			return nil, nil, errors.Config("wazero backend", err)
		}
		return ws, func() { _ = ws.Close(ctx) }, nil
	}
	return memory.NewSliceStore(size), func() {}, nil
}

// Options returns simulation options using store.
func (c *Config) Options(store cppsim.ByteStore) sim.Options {
	return sim.Options{
		Store:  store,
		Input:  c.Simulation.Input,
		Layout: c.Layout(),
		Seed:   c.Simulation.Seed,
	}
}

// AutoRunOptions returns the configured batching.
func (c *Config) AutoRunOptions() sim.AutoRunOptions {
	return sim.AutoRunOptions{
		Batch:     c.AutoRun.Batch.Duration,
		After:     c.AutoRun.After.Duration,
		StepLimit: c.AutoRun.StepLimit,
	}
}

// NewLogger builds a zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Config("invalid log level "+c.Log.Level, err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
