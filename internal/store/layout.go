package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/memtier/internal/model"
)

const (
	// ContentFile holds the record body.
	ContentFile = "content.md"
	// MetadataFile holds the record's model.Metadata as JSON.
	MetadataFile = "metadata.json"
)

// Ref locates one live record on disk.
type Ref struct {
	Scope     string
	SessionID string
	Created   time.Time // date component of the path, UTC midnight
	Dir       string
}

// RecordDir returns {root}/{scope}/{YYYY}/{MM}/{DD}/{sessionId}.
func RecordDir(root, scope string, created time.Time, sessionID string) string {
	created = created.UTC()
	return filepath.Join(root, scope,
		fmt.Sprintf("%04d", created.Year()),
		fmt.Sprintf("%02d", int(created.Month())),
		fmt.Sprintf("%02d", created.Day()),
		sessionID)
}

// Scopes returns the scopes that have a directory under the root, sorted.
// A missing root yields no scopes.
func (s *FSStore) Scopes() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store root: %w", err)
	}
	var scopes []string
	for _, e := range entries {
		if !e.IsDir() || model.ValidateScope(e.Name()) != nil {
			continue
		}
		scopes = append(scopes, e.Name())
	}
	return scopes, nil
}

// Walk calls fn for every live record in scope, or in every scope when scope
// is empty. Records are visited in path order (scope, date, sessionId).
// Directories that cannot be read or do not follow the layout are skipped.
// Walk stops early and returns the error if fn returns one.
func (s *FSStore) Walk(scope string, fn func(Ref) error) error {
	scopes := []string{scope}
	if scope == "" {
		var err error
		if scopes, err = s.Scopes(); err != nil {
			return err
		}
	} else if err := model.ValidateScope(scope); err != nil {
		return err
	}

	for _, sc := range scopes {
		if err := s.walkScope(sc, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSStore) walkScope(scope string, fn func(Ref) error) error {
	base := filepath.Join(s.root, scope)
	for _, year := range s.numericDirs(base, 4) {
		yDir := filepath.Join(base, year)
		for _, month := range s.numericDirs(yDir, 2) {
			mDir := filepath.Join(yDir, month)
			for _, day := range s.numericDirs(mDir, 2) {
				dDir := filepath.Join(mDir, day)
				created, ok := parseDate(year, month, day)
				if !ok {
					s.log.Debug("skipping malformed date path", "dir", dDir)
					continue
				}
				sessions, err := os.ReadDir(dDir)
				if err != nil {
					s.log.Debug("skipping unreadable directory", "dir", dDir, "error", err)
					continue
				}
				for _, e := range sessions {
					if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
						continue
					}
					ref := Ref{
						Scope:     scope,
						SessionID: e.Name(),
						Created:   created,
						Dir:       filepath.Join(dDir, e.Name()),
					}
					if err := fn(ref); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// numericDirs lists subdirectories of dir whose names are width digits.
func (s *FSStore) numericDirs(dir string, width int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug("skipping unreadable directory", "dir", dir, "error", err)
		}
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != width {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}

func parseDate(year, month, day string) (time.Time, bool) {
	t, err := time.Parse("2006/01/02", year+"/"+month+"/"+day)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Size returns the size of a record: content bytes plus metadata bytes.
func (s *FSStore) Size(ref Ref) (int64, error) {
	entries, err := os.ReadDir(ref.Dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Delete removes a record directory and prunes empty date directories above
// it. Deleting a record that is already gone is not an error.
func (s *FSStore) Delete(ref Ref) error {
	if err := os.RemoveAll(ref.Dir); err != nil {
		return fmt.Errorf("delete %s/%s: %w", ref.Scope, ref.SessionID, err)
	}
	scopeDir := filepath.Join(s.root, ref.Scope)
	dir := filepath.Dir(ref.Dir)
	for dir != scopeDir && strings.HasPrefix(dir, scopeDir) {
		// os.Remove fails on non-empty directories, which ends the pruning.
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
