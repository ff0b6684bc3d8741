// Package config handles luavm.toml and luavm.yaml VM configuration.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"

	"github.com/chazu/luavm/state"
)

var log = commonlog.GetLogger("luavm.config")

// File names searched for, in order.
var FileNames = []string{"luavm.toml", "luavm.yaml", "luavm.yml"}

// Config represents a luavm configuration file.
type Config struct {
	Limits Limits `toml:"limits" yaml:"limits"`
	Hooks  Hooks  `toml:"hooks" yaml:"hooks"`
	Log    Log    `toml:"log" yaml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Limits bounds the resources of one VM. Zero means the default.
type Limits struct {
	MaxStack       int   `toml:"max-stack" yaml:"max-stack"`
	MaxCallDepth   int   `toml:"max-call-depth" yaml:"max-call-depth"`
	MaxNativeCalls int   `toml:"max-native-calls" yaml:"max-native-calls"`
	InitialStack   int   `toml:"initial-stack" yaml:"initial-stack"`
	ExtraStack     int   `toml:"extra-stack" yaml:"extra-stack"`
	MemoryLimit    int64 `toml:"memory-limit" yaml:"memory-limit"`
}

// Hooks configures debug hooks.
type Hooks struct {
	// Inherit makes new coroutines start with their creator's hook. Unset
	// means true.
	Inherit *bool `toml:"inherit,omitempty" yaml:"inherit,omitempty"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity" yaml:"verbosity"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	d := state.DefaultOptions()
	if c.Limits.MaxStack == 0 {
		c.Limits.MaxStack = d.MaxStack
	}
	if c.Limits.MaxCallDepth == 0 {
		c.Limits.MaxCallDepth = d.MaxCallDepth
	}
	if c.Limits.MaxNativeCalls == 0 {
		c.Limits.MaxNativeCalls = d.MaxNativeCalls
	}
	if c.Limits.InitialStack == 0 {
		c.Limits.InitialStack = min(d.InitialStack, c.Limits.MaxStack)
	}
	if c.Limits.ExtraStack == 0 {
		c.Limits.ExtraStack = d.ExtraStack
	}
	if c.Hooks.Inherit == nil {
		inherit := true
		c.Hooks.Inherit = &inherit
	}
}

// Load reads the configuration file in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.Errorf("no configuration file in %s", dir)
}

// LoadFile parses a TOML or YAML configuration file, chosen by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	var c Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = toml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", path)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, errors.WithMessage(err, path)
	}
	log.Debugf("loaded %s", c.Path)
	return &c, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate rejects limits that cannot work together.
func (c *Config) Validate() error {
	l := c.Limits
	switch {
	case l.MaxStack < 0, l.MaxCallDepth < 0, l.MaxNativeCalls < 0,
		l.InitialStack < 0, l.ExtraStack < 0, l.MemoryLimit < 0:
		return errors.New("limits must not be negative")
	case l.MaxStack > 0 && l.MaxStack < state.MinStack:
		return errors.Errorf("max-stack %d is below the minimum of %d", l.MaxStack, state.MinStack)
	case l.InitialStack > l.MaxStack && l.MaxStack > 0:
		return errors.Errorf("initial-stack %d exceeds max-stack %d", l.InitialStack, l.MaxStack)
	case l.MemoryLimit > 0 && l.MemoryLimit < int64(l.InitialStack+l.ExtraStack)*state.SlotBytes:
		return errors.Errorf("memory-limit %d cannot hold the main thread's stack", l.MemoryLimit)
	}
	if c.Log.Verbosity < 0 {
		return errors.New("log verbosity must not be negative")
	}
	return nil
}

// Options converts the configuration into VM options.
func (c *Config) Options() state.Options {
	return state.Options{
		MaxStack:       c.Limits.MaxStack,
		MaxCallDepth:   c.Limits.MaxCallDepth,
		MaxNativeCalls: c.Limits.MaxNativeCalls,
		InitialStack:   c.Limits.InitialStack,
		ExtraStack:     c.Limits.ExtraStack,
		MemoryLimit:    c.Limits.MemoryLimit,
		NoInheritHooks: c.Hooks.Inherit != nil && !*c.Hooks.Inherit,
	}
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, errors.Wrap(err, "encoding configuration")
	}
	return buf.Bytes(), nil
}
