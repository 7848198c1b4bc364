// Package config loads repository settings from .weave/config.toml, or a
// YAML file with the same keys.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/weave/pkg/object"
)

// File names Find looks for, in order.
const (
	FileName     = "config.toml"
	YAMLFileName = "config.yaml"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendGit    = "git"
)

// Config is the repository configuration.
type Config struct {
	HashAlgorithm string      `toml:"hash_algorithm" yaml:"hash_algorithm"`
	Backend       string      `toml:"backend" yaml:"backend"`
	GitDir        string      `toml:"git_dir,omitempty" yaml:"git_dir,omitempty"`
	Merge         MergeConfig `toml:"merge" yaml:"merge"`
	Log           LogConfig   `toml:"log" yaml:"log"`
}

// MergeConfig tunes merge computations.
type MergeConfig struct {
	Strategy        string `toml:"strategy" yaml:"strategy"`
	LineMerge       bool   `toml:"line_merge" yaml:"line_merge"`
	Structural      bool   `toml:"structural,omitempty" yaml:"structural,omitempty"`
	MaxWalkSteps    int    `toml:"max_walk_steps,omitempty" yaml:"max_walk_steps,omitempty"`
	RecursionLimit  int    `toml:"recursion_limit,omitempty" yaml:"recursion_limit,omitempty"`
	CommitCacheSize int    `toml:"commit_cache_size,omitempty" yaml:"commit_cache_size,omitempty"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		HashAlgorithm: string(object.SHA256),
		Backend:       BackendFile,
		Merge: MergeConfig{
			Strategy:  "recursive",
			LineMerge: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Algorithm returns the parsed hash algorithm.
func (c *Config) Algorithm() (object.Algorithm, error) {
	return object.ParseAlgorithm(c.HashAlgorithm)
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if _, err := c.Algorithm(); err != nil {
		return err
	}
	switch c.Backend {
	case BackendFile, BackendBadger:
	case BackendGit:
		if strings.TrimSpace(c.GitDir) == "" {
			return errors.New("backend git requires git_dir")
		}
		if alg, _ := c.Algorithm(); alg != object.SHA1 {
			return errors.New("backend git requires hash_algorithm sha1")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Merge.MaxWalkSteps < 0 || c.Merge.RecursionLimit < 0 || c.Merge.CommitCacheSize < 0 {
		return errors.New("merge limits must not be negative")
	}
	return nil
}

// Find returns the config file in dir, preferring TOML. When none exists it
// returns the TOML path.
func Find(dir string) string {
	for _, name := range []string{FileName, YAMLFileName, "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, FileName)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the config at path on top of Default. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Save atomically writes cfg to path in the format implied by its
// extension.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	var buf bytes.Buffer
	if isYAML(path) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("write config: encode: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("write config: encode: %w", err)
		}
	} else if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
