package config

const (
	defaultRetentionDays        = 90
	defaultCacheSizeThresholdMB = 5.0
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Lifecycle: LifecycleConfig{
			RetentionDays:        defaultRetentionDays,
			CacheSizeThresholdMB: defaultCacheSizeThresholdMB,
		},
		Index: IndexConfig{
			Enabled: true,
		},
	}
}
