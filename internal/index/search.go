package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/memtier/internal/model"
)

// SearchParams holds parameters for an indexed search.
type SearchParams struct {
	Scope string // empty searches every scope
	Query string
	Limit int
}

// Hit is one indexed archived entry. Content must be loaded from the bundle.
type Hit struct {
	Scope            string          `json:"scope"`
	YearMonth        model.YearMonth `json:"yearMonth"`
	SessionID        string          `json:"sessionId"`
	NodeID           string          `json:"nodeId"`
	Title            string          `json:"title,omitempty"`
	Summary          string          `json:"summary,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	OriginalLastUsed time.Time       `json:"originalLastUsed"`
	ArchivedAt       time.Time       `json:"archivedAt"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search finds indexed entries whose title, summary or any single tag
// contains the query, ignoring case. Most recently archived entries come first.
func (ix *SQLiteIndex) Search(ctx context.Context, p SearchParams) ([]Hit, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	like := "%" + likeEscaper.Replace(p.Query) + "%"

	where := []string{`(title LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\'
		OR EXISTS (SELECT 1 FROM json_each(archived.tags) WHERE json_each.value LIKE ? ESCAPE '\'))`}
	args := []any{like, like, like}
	if p.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, p.Scope)
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT scope, year_month, session_id, node_id, title, summary, tags, original_last_used, archived_at
		FROM archived
		WHERE %s
		ORDER BY archived_at DESC, scope, session_id
		LIMIT ?`, strings.Join(where, " AND "))

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		h, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func scanHit(rows *sql.Rows) (Hit, error) {
	var h Hit
	var ym, lastUsed, archivedAt string
	var title, summary, tags sql.NullString
	if err := rows.Scan(&h.Scope, &ym, &h.SessionID, &h.NodeID, &title, &summary, &tags, &lastUsed, &archivedAt); err != nil {
		return h, err
	}
	h.YearMonth = model.YearMonth(ym)
	h.Title = title.String
	h.Summary = summary.String
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &h.Tags); err != nil {
			return h, fmt.Errorf("decode tags of %s/%s: %w", h.Scope, h.SessionID, err)
		}
	}
	var err error
	if h.OriginalLastUsed, err = time.Parse(time.RFC3339Nano, lastUsed); err != nil {
		return h, fmt.Errorf("parse original_last_used of %s/%s: %w", h.Scope, h.SessionID, err)
	}
	if h.ArchivedAt, err = time.Parse(time.RFC3339Nano, archivedAt); err != nil {
		return h, fmt.Errorf("parse archived_at of %s/%s: %w", h.Scope, h.SessionID, err)
	}
	return h, nil
}
