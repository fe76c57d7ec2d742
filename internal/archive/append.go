package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rcliao/memtier/internal/model"
)

// Append adds entry to the (scope, ym) bundle. The read-modify-write runs
// under an exclusive lock on the bundle's lock file and the new bundle
// replaces the old one by rename, so concurrent writers never drop each
// other's entries and readers never see a partial file.
//
// An entry whose sessionId is already in the bundle replaces the old entry
// in place, which makes retrying an interrupted eviction safe.
func (s *Store) Append(scope string, ym model.YearMonth, entry model.ArchivedEntry) error {
	if err := model.ValidateScope(scope); err != nil {
		return err
	}
	if !ym.Valid() {
		return fmt.Errorf("invalid archive month %q", ym)
	}
	if entry.SessionID == "" {
		return errors.New("archived entry has no session id")
	}

	path := BundlePath(s.root, scope, ym)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	lock, err := acquire(path + ".lock")
	if err != nil {
		return err
	}
	defer lock.release()

	bundle, err := readBundle(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		bundle = &model.Bundle{}
	case err != nil:
		// Never overwrite a bundle we could not parse.
		return err
	}

	replaced := false
	for i := range bundle.Entries {
		if bundle.Entries[i].SessionID == entry.SessionID {
			bundle.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		bundle.Entries = append(bundle.Entries, entry)
	}

	if err := writeBundle(path, bundle); err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.Record(context.Background(), scope, ym, entry); err != nil {
			s.log.Warn("archive index update failed",
				"scope", scope, "session_id", entry.SessionID, "error", err)
		}
	}
	return nil
}

func writeBundle(path string, b *model.Bundle) error {
	if b.Entries == nil {
		b.Entries = []model.ArchivedEntry{}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*.tmp")
	if err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace bundle: %w", err)
	}
	return nil
}
