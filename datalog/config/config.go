// Package config loads dataflowc settings from TOML.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wbrown/janus-dataflow/datalog/compiler"
	"github.com/wbrown/janus-dataflow/datalog/runtime"
)

// Config represents the dataflowc configuration.
type Config struct {
	Compiler CompilerConfig `toml:"compiler"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Cache    CacheConfig    `toml:"cache"`
	Catalog  CatalogConfig  `toml:"catalog"`
}

// CompilerConfig maps onto compiler.Options.
type CompilerConfig struct {
	// Arity is the clause size, 3 ([e a v]) or 4 ([e a v tx]).
	Arity int `toml:"arity"`

	// InputFeed names the raw input stream.
	InputFeed string `toml:"input_feed"`

	// Retraction wires filters to the terminal's feedback feed.
	Retraction bool `toml:"retraction"`

	// Terminal is "conflict-set" or "none".
	Terminal string `toml:"terminal"`

	// TerminalPolicy is "optional" or "required".
	TerminalPolicy string `toml:"terminal_policy"`
}

// RuntimeConfig configures the local engine.
type RuntimeConfig struct {
	Parallelism int `toml:"parallelism"`
	Workers     int `toml:"workers"`
}

// CacheConfig configures the topology cache. Size 0 disables it.
type CacheConfig struct {
	Size int    `toml:"size"`
	TTL  string `toml:"ttl"`
}

// CatalogConfig locates the topology catalog. An empty path keeps it in
// memory.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration matching compiler.DefaultOptions.
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Arity:          3,
			InputFeed:      "input",
			Terminal:       "conflict-set",
			TerminalPolicy: "optional",
		},
		Runtime: RuntimeConfig{
			Parallelism: runtime.DefaultParallelism,
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
	}
}

// Load loads the configuration from path, on top of Default. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML on top of Default. Unknown keys are errors.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Compiler.Arity != 3 && c.Compiler.Arity != 4 {
		return fmt.Errorf("compiler.arity must be 3 or 4, got %d", c.Compiler.Arity)
	}
	if c.Compiler.InputFeed == "" {
		return fmt.Errorf("compiler.input_feed must not be empty")
	}
	switch c.Compiler.Terminal {
	case "conflict-set", "none":
	default:
		return fmt.Errorf("compiler.terminal must be conflict-set or none, got %q", c.Compiler.Terminal)
	}
	if _, err := compiler.ParseTerminalPolicy(c.Compiler.TerminalPolicy); err != nil {
		return fmt.Errorf("compiler.terminal_policy: %w", err)
	}
	if c.Runtime.Parallelism < 0 || c.Runtime.Workers < 0 {
		return fmt.Errorf("runtime.parallelism and runtime.workers must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	if _, err := c.cacheTTL(); err != nil {
		return err
	}
	return nil
}

func (c *Config) cacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("cache.ttl: %w", err)
	}
	return ttl, nil
}

// CompilerOptions builds compiler options, including a cache when enabled.
func (c *Config) CompilerOptions() (compiler.Options, error) {
	if err := c.Validate(); err != nil {
		return compiler.Options{}, err
	}

	opts := compiler.DefaultOptions()
	opts.Arity = c.Compiler.Arity
	opts.InputFeed = c.Compiler.InputFeed
	opts.EnableRetraction = c.Compiler.Retraction
	opts.TerminalPolicy, _ = compiler.ParseTerminalPolicy(c.Compiler.TerminalPolicy)
	if c.Compiler.Terminal == "none" {
		opts.Terminal = nil
	}
	if c.Cache.Size > 0 {
		ttl, _ := c.cacheTTL()
		opts.Cache = compiler.NewTopologyCache(c.Cache.Size, ttl)
	}
	return opts, nil
}

// Engine builds the local execution engine.
func (c *Config) Engine() *runtime.LocalEngine {
	return &runtime.LocalEngine{
		Parallelism: c.Runtime.Parallelism,
		Workers:     c.Runtime.Workers,
	}
}

// Encode writes the configuration as TOML
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
