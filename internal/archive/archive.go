// Package archive implements cold storage for evicted memory records: one
// JSON bundle per (scope, creation month), read from disk on every call.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rcliao/memtier/internal/logger"
	"github.com/rcliao/memtier/internal/model"
)

// DirName is the per-scope directory holding archive bundles.
const DirName = ".archives"

var bundleName = regexp.MustCompile(`^memories-archive-(\d{4}-\d{2})\.json$`)

// ErrNotFound is returned by LoadOne when no bundle holds the session.
var ErrNotFound = errors.New("archived entry not found")

// BundleError reports a bundle that could not be read or parsed.
type BundleError struct {
	Path string
	Err  error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle %s: %v", e.Path, e.Err)
}

func (e *BundleError) Unwrap() error {
	return e.Err
}

func (e *BundleError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}

// Indexer is the optional metadata index kept in step with Append.
type Indexer interface {
	Record(ctx context.Context, scope string, ym model.YearMonth, e model.ArchivedEntry) error
	Lookup(ctx context.Context, scope, sessionID string) (model.YearMonth, bool, error)
}

// Store reads and writes archive bundles under a root directory.
type Store struct {
	root  string
	log   *slog.Logger
	index Indexer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for partial-failure warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger.OrNop(l)
	}
}

// WithIndex attaches a metadata index that Append updates and LoadOne
// consults first.
func WithIndex(ix Indexer) Option {
	return func(s *Store) {
		s.index = ix
	}
}

// New returns an archive store rooted at root, the same root as the live store.
func New(root string, opts ...Option) *Store {
	s := &Store{root: root, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BundlePath returns {root}/{scope}/.archives/memories-archive-{YYYY}-{MM}.json.
func BundlePath(root, scope string, ym model.YearMonth) string {
	return filepath.Join(root, scope, DirName, "memories-archive-"+string(ym)+".json")
}

// Bundles lists the year-months that have a bundle for scope, oldest first.
// A scope without archives has no bundles.
func (s *Store) Bundles(scope string) ([]model.YearMonth, error) {
	if err := model.ValidateScope(scope); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, scope, DirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	var months []model.YearMonth
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if m := bundleName.FindStringSubmatch(e.Name()); m != nil {
			months = append(months, model.YearMonth(m[1]))
		}
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	return months, nil
}

// Scopes lists the scopes that have an archive directory.
func (s *Store) Scopes() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive root: %w", err)
	}
	var scopes []string
	for _, e := range entries {
		if !e.IsDir() || model.ValidateScope(e.Name()) != nil {
			continue
		}
		if info, err := os.Stat(filepath.Join(s.root, e.Name(), DirName)); err == nil && info.IsDir() {
			scopes = append(scopes, e.Name())
		}
	}
	return scopes, nil
}

// ReadBundle parses one bundle. A missing bundle is returned as
// os.ErrNotExist; anything else unreadable is a *BundleError.
func (s *Store) ReadBundle(scope string, ym model.YearMonth) (*model.Bundle, error) {
	return readBundle(BundlePath(s.root, scope, ym))
}

func readBundle(path string) (*model.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, &BundleError{Path: path, Err: err}
	}
	var b model.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &BundleError{Path: path, Err: err}
	}
	return &b, nil
}
