package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/archive"
	"github.com/rcliao/memtier/internal/index"
)

var errIndexDisabled = errors.New("archive index is disabled (index.enabled = false)")

func init() {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the archive metadata index",
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from archive bundles",
		RunE:  runIndexRebuild,
	}
	rebuild.Flags().StringP("scope", "s", "all", "Scope, or all")

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the index by title, summary or tag",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndexSearch,
	}
	search.Flags().StringP("scope", "s", "all", "Scope, or all")
	search.Flags().IntP("limit", "l", 20, "Max results")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE:  runIndexStats,
	}

	cmd.AddCommand(rebuild, search, stats)
	RootCmd.AddCommand(cmd)
}

func withIndex(fn func(ix *index.SQLiteIndex) error) error {
	if !current.cfg.Index.Enabled {
		return errIndexDisabled
	}
	ix, err := openIndex()
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer ix.Close()
	return fn(ix)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	return withIndex(func(ix *index.SQLiteIndex) error {
		src := archive.New(current.cfg.Storage.Root, archive.WithLogger(current.log))
		res, err := ix.Rebuild(context.Background(), scopeArg(scope), src)
		if err != nil {
			return fmt.Errorf("index rebuild: %w", err)
		}
		for _, f := range res.Failures {
			current.log.Warn("bundle skipped during rebuild", "error", f)
		}
		return printJSON(cmd, res)
	})
}

func runIndexSearch(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")

	return withIndex(func(ix *index.SQLiteIndex) error {
		hits, err := ix.Search(context.Background(), index.SearchParams{
			Scope: scopeArg(scope),
			Query: strings.Join(args, " "),
			Limit: limit,
		})
		if err != nil {
			return fmt.Errorf("index search: %w", err)
		}
		if textMode() {
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\t%s\tarchived %s\n",
					h.Scope, h.SessionID, h.YearMonth, h.Title, humanize.Time(h.ArchivedAt))
			}
			return nil
		}
		return printJSON(cmd, hits)
	})
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	return withIndex(func(ix *index.SQLiteIndex) error {
		st, err := ix.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("index stats: %w", err)
		}
		if textMode() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s entries\n",
				st.DBPath, humanize.IBytes(uint64(st.DBSizeBytes)), humanize.Comma(int64(st.Entries)))
			for _, s := range st.Scopes {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%d entries in %d bundles\n", s.Scope, s.Entries, s.Bundles)
			}
			return nil
		}
		return printJSON(cmd, st)
	})
}
