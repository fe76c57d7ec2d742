package cli

import (
	"github.com/rcliao/memtier/internal/archive"
	"github.com/rcliao/memtier/internal/eviction"
	"github.com/rcliao/memtier/internal/index"
	"github.com/rcliao/memtier/internal/scanner"
	"github.com/rcliao/memtier/internal/store"
)

// tiers bundles the components one command works with.
type tiers struct {
	live    *store.FSStore
	archive *archive.Store
	scan    *scanner.Scanner
	engine  *eviction.Engine
	index   *index.SQLiteIndex // nil when disabled
}

func (t *tiers) Close() error {
	if t.index != nil {
		return t.index.Close()
	}
	return nil
}

func indexPath() string {
	if current.cfg.Index.Path != "" {
		return current.cfg.Index.Path
	}
	return index.DefaultPath(current.cfg.Storage.Root)
}

func openIndex() (*index.SQLiteIndex, error) {
	return index.Open(indexPath())
}

func openTiers() (*tiers, error) {
	cfg, log := current.cfg, current.log

	t := &tiers{}
	opts := []archive.Option{archive.WithLogger(log)}
	if cfg.Index.Enabled {
		ix, err := openIndex()
		if err != nil {
			log.Warn("archive index unavailable, continuing without it", "path", indexPath(), "error", err)
		} else {
			t.index = ix
			opts = append(opts, archive.WithIndex(ix))
		}
	}

	t.archive = archive.New(cfg.Storage.Root, opts...)
	live, err := store.NewFSStore(cfg.Storage.Root, log, store.WithArchiveChecker(t.archive))
	if err != nil {
		t.Close()
		return nil, err
	}
	t.live = live
	t.scan = scanner.New(live, log)
	t.engine = eviction.New(live, t.archive, t.scan, eviction.WithLogger(log))
	return t, nil
}

// scopeArg maps the "all" scope keyword to the empty scope.
func scopeArg(s string) string {
	if s == "all" {
		return ""
	}
	return s
}
