package index

import (
	"context"
	"fmt"

	"github.com/rcliao/memtier/internal/model"
)

// Source is the archive the index is rebuilt from.
type Source interface {
	Scopes() ([]string, error)
	Bundles(scope string) ([]model.YearMonth, error)
	ReadBundle(scope string, ym model.YearMonth) (*model.Bundle, error)
}

// RebuildResult reports what a rebuild indexed.
type RebuildResult struct {
	Scopes   []string `json:"scopes"`
	Bundles  int      `json:"bundles"`
	Entries  int      `json:"entries"`
	Failures []string `json:"failures,omitempty"`
}

// Rebuild drops the index rows of scope (every archived scope when empty)
// and re-reads its bundles. A bundle that cannot be read is reported and
// skipped; its entries are simply absent from the index.
func (ix *SQLiteIndex) Rebuild(ctx context.Context, scope string, src Source) (*RebuildResult, error) {
	scopes := []string{scope}
	if scope == "" {
		var err error
		if scopes, err = src.Scopes(); err != nil {
			return nil, err
		}
	}

	res := &RebuildResult{Scopes: []string{}}
	for _, sc := range scopes {
		if err := ix.rebuildScope(ctx, sc, src, res); err != nil {
			return nil, err
		}
		res.Scopes = append(res.Scopes, sc)
	}
	return res, nil
}

func (ix *SQLiteIndex) rebuildScope(ctx context.Context, scope string, src Source, res *RebuildResult) error {
	months, err := src.Bundles(scope)
	if err != nil {
		return err
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM archived WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("clear scope %s: %w", scope, err)
	}
	for _, ym := range months {
		b, err := src.ReadBundle(scope, ym)
		if err != nil {
			res.Failures = append(res.Failures, err.Error())
			continue
		}
		res.Bundles++
		for _, e := range b.Entries {
			if err := record(ctx, tx, scope, ym, e); err != nil {
				return err
			}
			res.Entries++
		}
	}
	return tx.Commit()
}
