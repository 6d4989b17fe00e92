// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads jvmcore settings from defaults, an optional
// YAML file, JVMCORE_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"golang.org/x/jvmcore/internal/core"
)

// EnvPrefix prefixes the environment variables read by Load.
// target.pid is read from JVMCORE_TARGET_PID.
const EnvPrefix = "JVMCORE"

// Config is the complete configuration of the jvmcore command.
type Config struct {
	Target TargetConfig `mapstructure:"target"`
	Schema SchemaConfig `mapstructure:"schema"`
	Log    LogConfig    `mapstructure:"log"`
	// Stats prints counts of target reads when a command finishes.
	Stats bool `mapstructure:"stats"`
}

// TargetConfig selects the VM to read.
type TargetConfig struct {
	Core string `mapstructure:"core"` // core file
	Exe  string `mapstructure:"exe"`  // executable, if not the one named in the core
	Base string `mapstructure:"base"` // root directory for files named in the core
	Pid  int    `mapstructure:"pid"`  // running process
	// Pause stops a running process for the duration of each command.
	Pause bool `mapstructure:"pause"`
	// Heap is the address of the ParallelScavengeHeap, in hex.
	// Empty means to find it through Universe::_collectedHeap.
	Heap string `mapstructure:"heap"`
}

// SchemaConfig says where type layouts come from.
type SchemaConfig struct {
	// File is a schema written by "jvmcore schema dump". Empty means to
	// read the vmStructs tables from the target.
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // logfmt or json
}

// New returns a viper instance holding the defaults and reading the
// environment. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.core", "")
	v.SetDefault("target.exe", "")
	v.SetDefault("target.base", "")
	v.SetDefault("target.pid", 0)
	v.SetDefault("target.pause", false)
	v.SetDefault("target.heap", "")

	v.SetDefault("schema.file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "logfmt")

	v.SetDefault("stats", false)
}

// Load reads the config file at configPath into v, or jvmcore.yaml
// from the working directory or $HOME/.jvmcore if configPath is empty,
// and returns the validated result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("jvmcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.jvmcore")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromReader reads a config of the given type ("yaml", "json", ...)
// from content, on top of the defaults.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks c for contradictions. It does not require a target;
// commands that need one check with HasTarget.
func (c *Config) Validate() error {
	if c.Target.Core != "" && c.Target.Pid != 0 {
		return fmt.Errorf("target.core and target.pid are mutually exclusive")
	}
	if c.Target.Pid < 0 {
		return fmt.Errorf("invalid target.pid %d", c.Target.Pid)
	}
	if c.Target.Pause && c.Target.Pid == 0 {
		return fmt.Errorf("target.pause needs target.pid")
	}
	if _, _, err := c.HeapAddr(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "logfmt", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	if c.Schema.File != "" {
		if _, err := os.Stat(c.Schema.File); err != nil {
			return fmt.Errorf("schema.file: %w", err)
		}
	}
	return nil
}

// HasTarget reports whether a core file or process is configured.
func (c *Config) HasTarget() bool {
	return c.Target.Core != "" || c.Target.Pid != 0
}

// HeapAddr returns the configured heap address, if any.
func (c *Config) HeapAddr() (core.Address, bool, error) {
	if c.Target.Heap == "" {
		return 0, false, nil
	}
	a, err := ParseAddress(c.Target.Heap)
	if err != nil {
		return 0, false, fmt.Errorf("target.heap: %w", err)
	}
	return a, true, nil
}

// ParseAddress parses a hex address, with or without a 0x prefix.
func ParseAddress(s string) (core.Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	x, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return core.Address(x), nil
}
