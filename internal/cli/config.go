package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write config.toml in the memtier home dir",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigGet,
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configuration values from config.toml",
		RunE:  runConfigList,
	}

	cmd.AddCommand(get, set, list)
	RootCmd.AddCommand(cmd)
}

func configer(key string) (*config.Configer, error) {
	if key != "" && !config.IsValidConfigKey(key) {
		return nil, fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return config.NewConfiger(current.home)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	c, err := configer(args[0])
	if err != nil {
		return err
	}
	v, err := c.GetConfigValue(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	c, err := configer(args[0])
	if err != nil {
		return err
	}
	if err := c.SetConfigValue(args[0], args[1]); err != nil {
		return err
	}
	current.log.Info("config updated", "key", args[0], "file", c.GetTarget())
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	c, err := configer("")
	if err != nil {
		return err
	}
	for _, key := range config.ValidConfigKeys() {
		v, err := c.GetConfigValue(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, v)
	}
	return nil
}
