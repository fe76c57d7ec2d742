package index

import (
	"context"
	"os"
)

// Stats holds index statistics.
type Stats struct {
	DBPath      string       `json:"dbPath"`
	DBSizeBytes int64        `json:"dbSizeBytes"`
	Entries     int          `json:"entries"`
	Scopes      []ScopeStats `json:"scopes"`
}

// ScopeStats holds per-scope counts.
type ScopeStats struct {
	Scope   string `json:"scope"`
	Entries int    `json:"entries"`
	Bundles int    `json:"bundles"`
}

// Stats returns index statistics.
func (ix *SQLiteIndex) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: ix.path, Scopes: []ScopeStats{}}

	if info, err := os.Stat(ix.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived`).Scan(&st.Entries); err != nil {
		return nil, err
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT scope, COUNT(*) AS cnt, COUNT(DISTINCT year_month) AS months
		FROM archived
		GROUP BY scope ORDER BY cnt DESC, scope`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var s ScopeStats
		if err := rows.Scan(&s.Scope, &s.Entries, &s.Bundles); err != nil {
			return st, err
		}
		st.Scopes = append(st.Scopes, s)
	}
	return st, rows.Err()
}
