package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag. Commands reference
// flags by registry key so a flag shared by several commands cannot drift.
type Flag struct {
	// Name is the long flag name (e.g. "retention-days").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to.
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of registry keys to flags.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagRoot          = "root"
	FlagRetentionDays = "retention-days"
	FlagThresholdMB   = "threshold-mb"
	FlagIndex         = "index"
	FlagIndexPath     = "index-path"
	FlagDebug         = "debug"
	FlagJSONLogs      = "json-logs"
)

// Flags is the registry of memtier flags that map onto config keys.
var Flags = FlagSet{
	FlagRoot:          {Name: "root", ViperKey: "storage.root", Description: "Store root directory (default: the memtier home dir)"},
	FlagRetentionDays: {Name: "retention-days", ViperKey: "lifecycle.retention_days", Description: "Days since last use before a record is archived"},
	FlagThresholdMB:   {Name: "threshold-mb", ViperKey: "lifecycle.cache_size_threshold_mb", Description: "Per-scope live size target in MB"},
	FlagIndex:         {Name: "index", ViperKey: "index.enabled", Description: "Maintain the archive metadata index"},
	FlagIndexPath:     {Name: "index-path", ViperKey: "index.path", Description: "Archive index database path (default: {root}/.index/archive.db)"},
	FlagDebug:         {Name: "debug", ViperKey: "log.debug", Description: "Enable debug logging"},
	FlagJSONLogs:      {Name: "json-logs", ViperKey: "log.json", Description: "Emit logs as JSON"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.PersistentFlags().StringVarP(target, def.Name, def.Shorthand, defaults().GetString(def.ViperKey), def.Description)
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.PersistentFlags().IntVarP(target, def.Name, def.Shorthand, defaults().GetInt(def.ViperKey), def.Description)
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.PersistentFlags().Float64VarP(target, def.Name, def.Shorthand, defaults().GetFloat64(def.ViperKey), def.Description)
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.PersistentFlags().BoolVarP(target, def.Name, def.Shorthand, defaults().GetBool(def.ViperKey), def.Description)
}

// BindRegisteredFlags binds flags the user actually set to viper, so they
// take precedence over env, config file and defaults. Call it after
// InitViper.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, key := range registryKeys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		f := cmd.Flags().Lookup(def.Name)
		if f == nil || !f.Changed {
			continue
		}
		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
