// Package config handles recompiler.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"recompiler/internal/analysis"
	"recompiler/internal/elfx"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "recompiler.toml"

// Config represents a recompiler.toml file.
type Config struct {
	Sections Sections `toml:"sections" json:"sections" jsonschema:"title=Sections,description=Names of the sections procedures are recovered from"`
	Recover  Recover  `toml:"recover" json:"recover" jsonschema:"title=Recovery,description=Procedure recovery settings"`
	Debug    bool     `toml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Sections names the code and initializer sections.
type Sections struct {
	Text string `toml:"text" json:"text,omitempty" jsonschema:"title=Code section,default=.text"`
	Init string `toml:"init" json:"init,omitempty" jsonschema:"title=Initializer section,default=.init"`
}

// Recover configures procedure recovery.
type Recover struct {
	EntrySymbol string `toml:"entry-symbol" json:"entrySymbol,omitempty" jsonschema:"title=Entry symbol,description=Symbol whose body is the initializer section,default=_init"`
	KeepPadding bool   `toml:"keep-padding" json:"keepPadding,omitempty" jsonschema:"title=Keep padding,description=Keep trailing no-op padding in procedures"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Sections.Text == "" {
		c.Sections.Text = elfx.TextSection
	}
	if c.Sections.Init == "" {
		c.Sections.Init = elfx.InitSection
	}
	if c.Recover.EntrySymbol == "" {
		c.Recover.EntrySymbol = analysis.DefaultEntrySymbol
	}
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

// Load parses recompiler.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// FindAndLoad walks up from startDir to find a recompiler.toml file and
// loads it. When none is found it returns the default configuration.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// ImageOptions returns the loader options for this configuration.
func (c *Config) ImageOptions() elfx.Options {
	return elfx.Options{
		TextSection: c.Sections.Text,
		InitSection: c.Sections.Init,
	}
}

// RecoverOptions returns the recovery options for this configuration.
func (c *Config) RecoverOptions() analysis.Options {
	return analysis.Options{
		EntrySymbol: c.Recover.EntrySymbol,
		KeepPadding: c.Recover.KeepPadding,
	}
}
