package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a live memory record",
		RunE:  runRm,
	}

	cmd.Flags().StringP("scope", "s", model.GlobalScope, "Scope")
	cmd.Flags().String("session", "", "Session id (required)")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	session, _ := cmd.Flags().GetString("session")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.live.Rm(store.RmParams{Scope: scope, SessionID: session}); err != nil {
		return fmt.Errorf("rm: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"scope":%q,"sessionId":%q}`+"\n", scope, session)
	return nil
}
