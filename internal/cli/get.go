package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Retrieve a live memory record",
		Long:  "Retrieve a live record with its content. Reading counts as a use unless --peek is given.",
		RunE:  runGet,
	}

	cmd.Flags().StringP("scope", "s", model.GlobalScope, "Scope")
	cmd.Flags().String("session", "", "Session id (required)")
	cmd.Flags().Bool("peek", false, "Do not record the read as a use")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	session, _ := cmd.Flags().GetString("session")
	peek, _ := cmd.Flags().GetBool("peek")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	rec, err := t.live.Get(store.GetParams{Scope: scope, SessionID: session, Touch: !peek})
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	if textMode() {
		fmt.Fprintln(cmd.OutOrStdout(), rec.Content)
		return nil
	}
	return printJSON(cmd, rec)
}
