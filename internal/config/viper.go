package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates a *viper.Viper for the given home directory. It sets
// defaults from NewDefaultConfig(), reads config.toml if present, and binds
// environment variables with the MEMTIER_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MEMTIER_LIFECYCLE_RETENTION_DAYS, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(home string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if home != "" {
		v.AddConfigPath(home)
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("MEMTIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() using
// dotted-key notation.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("lifecycle.retention_days", d.Lifecycle.RetentionDays)
	v.SetDefault("lifecycle.cache_size_threshold_mb", d.Lifecycle.CacheSizeThresholdMB)
	v.SetDefault("index.enabled", d.Index.Enabled)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.json", d.Log.JSON)
}

// FromViper materialises the effective configuration. An empty storage
// root resolves to home.
func FromViper(v *viper.Viper, home string) (*Config, error) {
	cfg := &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{Root: v.GetString("storage.root")},
		Lifecycle: LifecycleConfig{
			RetentionDays:        v.GetInt("lifecycle.retention_days"),
			CacheSizeThresholdMB: v.GetFloat64("lifecycle.cache_size_threshold_mb"),
		},
		Index: IndexConfig{
			Enabled: v.GetBool("index.enabled"),
			Path:    v.GetString("index.path"),
		},
		Log: LogConfig{
			Debug: v.GetBool("log.debug"),
			JSON:  v.GetBool("log.json"),
		},
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = home
	}
	if cfg.Lifecycle.RetentionDays <= 0 {
		return nil, fmt.Errorf("lifecycle.retention_days must be positive, got %d", cfg.Lifecycle.RetentionDays)
	}
	if cfg.Lifecycle.CacheSizeThresholdMB <= 0 {
		return nil, fmt.Errorf("lifecycle.cache_size_threshold_mb must be positive, got %v", cfg.Lifecycle.CacheSizeThresholdMB)
	}
	return cfg, nil
}
