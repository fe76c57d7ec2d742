package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live memory records, most recently used first",
		RunE:  runList,
	}

	cmd.Flags().StringP("scope", "s", "all", "Scope, or all")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, all must match)")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output scope/session pairs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	tagsStr, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	records, err := t.live.List(store.ListParams{
		Scope: scopeArg(scope),
		Tags:  splitTags(tagsStr),
		Limit: limit,
	})
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	switch {
	case idsOnly:
		for _, r := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", r.Scope, r.SessionID)
		}
		return nil
	case textMode():
		writeRecords(cmd.OutOrStdout(), records)
		return nil
	}
	if records == nil {
		return printJSON(cmd, []any{})
	}
	return printJSON(cmd, records)
}
