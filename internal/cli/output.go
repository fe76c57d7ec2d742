package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/scanner"
)

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func textMode() bool {
	return formatFlag == "text"
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func writeRecords(w io.Writer, records []model.Record) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tSESSION\tTITLE\tSIZE\tLAST USED\tUSES")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.Scope, r.SessionID, r.Title,
			humanize.IBytes(uint64(r.SizeBytes)),
			humanize.Time(r.Usage.LastUsed),
			r.Usage.TimesUsed)
	}
	tw.Flush()
}

func writeReport(w io.Writer, rep *scanner.Report) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tRECORDS\tSIZE")
	for _, su := range rep.Scopes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", su.Scope, humanize.Comma(int64(su.Records)), humanize.IBytes(uint64(su.Bytes)))
	}
	fmt.Fprintf(tw, "total\t%s\t%s\n", humanize.Comma(int64(rep.Records)), humanize.IBytes(uint64(rep.TotalBytes)))
	tw.Flush()
}

// parseTime accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (use RFC 3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}
