// Package config loads replica settings from defaults, an optional
// plos.yaml in the replica root, and PLOS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the replica root (without extension).
const FileName = "plos"

// DefaultSealThreshold is the buffer size at which appends trigger a seal.
const DefaultSealThreshold = 1000

// Config is the resolved replica configuration.
type Config struct {
	// Root is the replica root; relative paths below are resolved against it.
	Root    string        `mapstructure:"-"`
	DataDir string        `mapstructure:"data_dir"`
	Seal    SealConfig    `mapstructure:"seal"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Index   IndexConfig   `mapstructure:"index"`
	Keys    KeysConfig    `mapstructure:"keys"`
}

// SealConfig controls automatic sealing.
type SealConfig struct {
	// Threshold of buffered events at which an append seals. 0 disables.
	Threshold int `mapstructure:"threshold"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// IndexConfig controls the SQLite event index.
type IndexConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// KeysConfig locates signing keys and the key registry.
type KeysConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load resolves the configuration for the replica at root.
func Load(root string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(root)

	v.SetEnvPrefix("PLOS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Root = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default(root string) *Config {
	return &Config{
		Root:    root,
		DataDir: "data",
		Seal:    SealConfig{Threshold: DefaultSealThreshold},
		Log:     LogConfig{Level: "info", Format: "text"},
		Index:   IndexConfig{Path: "index.db"},
		Keys:    KeysConfig{Dir: "keys"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default("")
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("seal.threshold", d.Seal.Threshold)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.file", d.Metrics.File)
	v.SetDefault("index.enabled", d.Index.Enabled)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("keys.dir", d.Keys.Dir)
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Seal.Threshold < 0 {
		return fmt.Errorf("seal.threshold must be >= 0, got %d", c.Seal.Threshold)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir must not be empty")
	}
	return nil
}

// DataPath is the absolute-or-root-relative data directory.
func (c *Config) DataPath() string {
	return c.resolve(c.DataDir)
}

// KeysPath is the directory holding key material and the registry, kept
// inside the data directory unless absolute.
func (c *Config) KeysPath() string {
	if filepath.IsAbs(c.Keys.Dir) {
		return c.Keys.Dir
	}
	return filepath.Join(c.DataPath(), c.Keys.Dir)
}

// IndexPath is the SQLite index file, kept inside the data directory.
func (c *Config) IndexPath() string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(c.DataPath(), c.Index.Path)
}

// MetricsPath is the textfile to write metrics to, or "" when disabled.
func (c *Config) MetricsPath() string {
	if c.Metrics.File == "" {
		return ""
	}
	return c.resolve(c.Metrics.File)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}
