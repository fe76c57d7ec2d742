package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/archive"
	"github.com/rcliao/memtier/internal/eviction"
	"github.com/rcliao/memtier/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move cold records to the archive and read them back",
	}

	age := &cobra.Command{
		Use:   "age",
		Short: "Archive records unused for --retention-days",
		RunE:  runArchiveAge,
	}
	age.Flags().StringP("scope", "s", "all", "Scope, or all")
	age.Flags().IntP("limit", "l", 0, "Max records to archive in this run (0: no cap)")

	threshold := &cobra.Command{
		Use:   "threshold",
		Short: "Archive least recently used records until each scope is under --threshold-mb",
		RunE:  runArchiveThreshold,
	}
	threshold.Flags().StringP("scope", "s", "all", "Scope, or all")

	check := &cobra.Command{
		Use:   "check",
		Short: "Archive only if a scope is over --threshold-mb",
		RunE:  runArchiveCheck,
	}
	check.Flags().StringP("scope", "s", "all", "Scope, or all")

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search archived titles, summaries and tags",
		Long:  "Case-insensitive substring search over every bundle of a scope. Content is not searched.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runArchiveSearch,
	}
	search.Flags().StringP("scope", "s", model.GlobalScope, "Scope, or all")

	load := &cobra.Command{
		Use:   "load",
		Short: "Load one archived record with its content",
		RunE:  runArchiveLoad,
	}
	load.Flags().StringP("scope", "s", model.GlobalScope, "Scope")
	load.Flags().String("session", "", "Session id (required)")
	load.MarkFlagRequired("session")

	cmd.AddCommand(age, threshold, check, search, load)
	RootCmd.AddCommand(cmd)
}

func printResult(cmd *cobra.Command, v any, res *eviction.Result) error {
	if textMode() {
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d records, freed %s\n",
			res.Archived, humanize.IBytes(uint64(res.FreedBytes)))
		for _, f := range res.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "failed %s/%s at %s: %s\n", f.Scope, f.SessionID, f.Stage, f.Error)
		}
		if res.Exhausted {
			fmt.Fprintln(cmd.OutOrStdout(), "no candidates left; some scopes remain over target")
		}
		return nil
	}
	return printJSON(cmd, v)
}

func runArchiveAge(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	res, err := t.engine.ArchiveByAge(eviction.AgeParams{
		Scope:         scopeArg(scope),
		RetentionDays: current.cfg.Lifecycle.RetentionDays,
		Limit:         limit,
	})
	if err != nil {
		return fmt.Errorf("archive by age: %w", err)
	}
	return printResult(cmd, res, res)
}

func runArchiveThreshold(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	res, err := t.engine.ArchiveToThreshold(eviction.ThresholdParams{
		Scope:    scopeArg(scope),
		TargetMB: current.cfg.Lifecycle.CacheSizeThresholdMB,
	})
	if err != nil {
		return fmt.Errorf("archive to threshold: %w", err)
	}
	return printResult(cmd, res, res)
}

func runArchiveCheck(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	res, err := t.engine.CheckAndArchive(eviction.ThresholdParams{
		Scope:    scopeArg(scope),
		TargetMB: current.cfg.Lifecycle.CacheSizeThresholdMB,
	})
	if err != nil {
		return fmt.Errorf("check and archive: %w", err)
	}
	if textMode() && !res.Triggered {
		fmt.Fprintln(cmd.OutOrStdout(), "under target, nothing archived")
		return nil
	}
	return printResult(cmd, res, &res.Result)
}

func runArchiveSearch(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	query := strings.Join(args, " ")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	scopes := []string{scope}
	if scopeArg(scope) == "" {
		if scopes, err = t.archive.Scopes(); err != nil {
			return err
		}
	}

	out := &archive.SearchResult{Matches: []archive.Match{}}
	for _, sc := range scopes {
		res, err := t.archive.Search(sc, query)
		if err != nil {
			return fmt.Errorf("archive search: %w", err)
		}
		out.Matches = append(out.Matches, res.Matches...)
		out.Failures = append(out.Failures, res.Failures...)
	}

	if textMode() {
		for _, m := range out.Matches {
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\t%s\n", m.Scope, m.Entry.SessionID, m.YearMonth, m.Entry.Title)
		}
		for _, f := range out.Failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", f)
		}
		return nil
	}
	return printJSON(cmd, out)
}

func runArchiveLoad(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	session, _ := cmd.Flags().GetString("session")

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	m, err := t.archive.LoadOne(scope, session)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return fmt.Errorf("%s/%s is not archived: %w", scope, session, err)
		}
		return fmt.Errorf("archive load: %w", err)
	}

	if textMode() {
		fmt.Fprintln(cmd.OutOrStdout(), m.Entry.Content)
		return nil
	}
	return printJSON(cmd, m)
}
