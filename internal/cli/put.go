package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/digest"
	"github.com/rcliao/memtier/internal/eviction"
	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory record",
		Long: `Store a memory record. Content can be a positional arg or piped via stdin.
After the write the scope is checked against the size target and cold
records are archived if it is over.`,
		RunE: runPut,
	}

	cmd.Flags().StringP("scope", "s", model.GlobalScope, "Scope: global or a vault/node id")
	cmd.Flags().String("session", "", "Session id (default: generated)")
	cmd.Flags().String("title", "", "Title (default: first heading or line of content)")
	cmd.Flags().String("summary", "", "Summary (default: first paragraph of content)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("created", "", "Creation time (RFC 3339 or YYYY-MM-DD, default: now)")
	cmd.Flags().String("last-used", "", "Last use time (default: creation time)")
	cmd.Flags().Bool("no-check", false, "Skip the size check after writing")

	RootCmd.AddCommand(cmd)
}

// putOutput is the result of put.
type putOutput struct {
	Record   *model.Record          `json:"record"`
	Eviction *eviction.CheckResult `json:"eviction,omitempty"`
}

// piped reports whether r carries input. Terminals do not; readers that are
// not files always do.
func piped(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice == 0
}

func runPut(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	session, _ := cmd.Flags().GetString("session")
	title, _ := cmd.Flags().GetString("title")
	summary, _ := cmd.Flags().GetString("summary")
	tagsStr, _ := cmd.Flags().GetString("tags")
	createdStr, _ := cmd.Flags().GetString("created")
	lastUsedStr, _ := cmd.Flags().GetString("last-used")
	noCheck, _ := cmd.Flags().GetBool("no-check")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else if in := cmd.InOrStdin(); piped(in) {
		b, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(b)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required (positional arg or stdin)")
	}

	content = strings.TrimSpace(content)
	title, summary = digest.Fill(title, summary, content, digest.DefaultOptions())

	created, err := parseTime(createdStr)
	if err != nil {
		return err
	}
	lastUsed, err := parseTime(lastUsedStr)
	if err != nil {
		return err
	}

	t, err := openTiers()
	if err != nil {
		return err
	}
	defer t.Close()

	rec, err := t.live.Put(store.PutParams{
		Scope:     scope,
		SessionID: session,
		Title:     title,
		Summary:   summary,
		Tags:      splitTags(tagsStr),
		Content:   content,
		CreatedAt: created,
		LastUsed:  lastUsed,
	})
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	current.log.Info("stored record", "scope", rec.Scope, "session_id", rec.SessionID, "size_bytes", rec.SizeBytes)

	out := putOutput{Record: rec}
	if !noCheck {
		res, err := t.engine.CheckAndArchive(eviction.ThresholdParams{
			Scope:    scope,
			TargetMB: current.cfg.Lifecycle.CacheSizeThresholdMB,
		})
		if err != nil {
			return fmt.Errorf("size check: %w", err)
		}
		out.Eviction = res
	}
	return printJSON(cmd, out)
}
