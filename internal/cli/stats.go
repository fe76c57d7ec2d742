package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show live store size per scope",
		RunE:  runStats,
	}

	cmd.Flags().StringP("scope", "s", "all", "Scope, or all")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	rep, err := t.scan.Scan(scopeArg(scope))
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	if textMode() {
		writeReport(cmd.OutOrStdout(), rep)
		return nil
	}
	return printJSON(cmd, rep)
}
