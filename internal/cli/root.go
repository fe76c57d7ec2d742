// Package cli implements the memtier CLI commands.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/config"
	"github.com/rcliao/memtier/internal/logger"
)

var (
	homeFlag   string
	formatFlag string

	rootFlag      string
	retentionFlag int
	thresholdFlag float64
	indexFlag     bool
	indexPathFlag string
	debugFlag     bool
	jsonLogsFlag  bool
)

// boundFlags are the registry flags that feed the config precedence chain.
var boundFlags = []string{
	config.FlagRoot,
	config.FlagRetentionDays,
	config.FlagThresholdMB,
	config.FlagIndex,
	config.FlagIndexPath,
	config.FlagDebug,
	config.FlagJSONLogs,
}

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memtier",
	Short: "Tiered memory store with usage-driven archival",
	Long: `Keeps small memory records in a file-backed live store and moves cold ones
into month-partitioned archive bundles, by age or when a scope outgrows its
size target.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "memtier home dir (default: ./.memtier or ~/.memtier)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")

	config.AddStringFlag(RootCmd, config.Flags, config.FlagRoot, &rootFlag)
	config.AddIntFlag(RootCmd, config.Flags, config.FlagRetentionDays, &retentionFlag)
	config.AddFloatFlag(RootCmd, config.Flags, config.FlagThresholdMB, &thresholdFlag)
	config.AddBoolFlag(RootCmd, config.Flags, config.FlagIndex, &indexFlag)
	config.AddStringFlag(RootCmd, config.Flags, config.FlagIndexPath, &indexPathFlag)
	config.AddBoolFlag(RootCmd, config.Flags, config.FlagDebug, &debugFlag)
	config.AddBoolFlag(RootCmd, config.Flags, config.FlagJSONLogs, &jsonLogsFlag)
}

// env is the resolved configuration for the running command.
type env struct {
	home string
	cfg  *config.Config
	log  *slog.Logger
}

var current *env

func loadEnv(cmd *cobra.Command, _ []string) error {
	switch formatFlag {
	case "json", "text":
	default:
		return fmt.Errorf("unknown format %q (use json or text)", formatFlag)
	}

	home, err := config.HomeDir(homeFlag)
	if err != nil {
		return err
	}
	v, err := config.InitViper(home)
	if err != nil {
		return err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, boundFlags)

	cfg, err := config.FromViper(v, home)
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithDebug(cfg.Log.Debug),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(!cfg.Log.JSON),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
	current = &env{home: home, cfg: cfg, log: log}
	log.Debug("configuration loaded", "home", home, "root", cfg.Storage.Root, "index", cfg.Index.Enabled)
	return nil
}
