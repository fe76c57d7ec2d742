package config

import (
	"fmt"
	"strconv"
)

// Config is the persistent memtier configuration stored as config.toml in
// the memtier home directory. The TOML layout uses sections for logical
// grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Index     IndexConfig     `toml:"index"`
	Log       LogConfig       `toml:"log"`
}

// StorageConfig locates the live store and archives.
type StorageConfig struct {
	// Root defaults to the memtier home directory.
	Root string `toml:"root,omitempty"`
}

// LifecycleConfig holds eviction policy inputs.
type LifecycleConfig struct {
	RetentionDays        int     `toml:"retention_days"`
	CacheSizeThresholdMB float64 `toml:"cache_size_threshold_mb"`
}

// IndexConfig controls the archive metadata index.
type IndexConfig struct {
	Enabled bool `toml:"enabled"`
	// Path defaults to {root}/.index/archive.db.
	Path string `toml:"path,omitempty"`
}

// LogConfig controls log output.
type LogConfig struct {
	Debug bool `toml:"debug"`
	JSON  bool `toml:"json"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.root": {
		get: func(c *Config) string { return c.Storage.Root },
		set: func(c *Config, v string) error { c.Storage.Root = v; return nil },
	},
	"lifecycle.retention_days": {
		get: func(c *Config) string { return strconv.Itoa(c.Lifecycle.RetentionDays) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for lifecycle.retention_days: %w", err)
			}
			if n <= 0 {
				return fmt.Errorf("invalid value for lifecycle.retention_days: must be positive")
			}
			c.Lifecycle.RetentionDays = n
			return nil
		},
	},
	"lifecycle.cache_size_threshold_mb": {
		get: func(c *Config) string {
			return strconv.FormatFloat(c.Lifecycle.CacheSizeThresholdMB, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for lifecycle.cache_size_threshold_mb: %w", err)
			}
			if f <= 0 {
				return fmt.Errorf("invalid value for lifecycle.cache_size_threshold_mb: must be positive")
			}
			c.Lifecycle.CacheSizeThresholdMB = f
			return nil
		},
	},
	"index.enabled": boolKey("index.enabled", func(c *Config) *bool { return &c.Index.Enabled }),
	"index.path": {
		get: func(c *Config) string { return c.Index.Path },
		set: func(c *Config, v string) error { c.Index.Path = v; return nil },
	},
	"log.debug": boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	"log.json":  boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
}
