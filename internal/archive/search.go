package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/memtier/internal/model"
)

// Match is an archived entry together with the bundle it was found in.
type Match struct {
	Scope     string              `json:"scope"`
	YearMonth model.YearMonth     `json:"yearMonth"`
	Entry     model.ArchivedEntry `json:"entry"`
}

// SearchResult holds the matches from every readable bundle plus one
// failure per bundle that could not be read.
type SearchResult struct {
	Matches  []Match        `json:"matches"`
	Failures []*BundleError `json:"failures,omitempty"`
}

// Partial reports whether some bundles were skipped.
func (r *SearchResult) Partial() bool {
	return len(r.Failures) > 0
}

// Search returns every archived entry in scope whose title, summary or tags
// contain query, ignoring case. Each call re-reads all bundles of the scope;
// a bundle that fails to parse is reported in Failures and does not hide
// matches from the others.
func (s *Store) Search(scope, query string) (*SearchResult, error) {
	months, err := s.Bundles(scope)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{Matches: []Match{}}
	for _, ym := range months {
		b, err := s.ReadBundle(scope, ym)
		if err != nil {
			res.Failures = append(res.Failures, s.bundleFailure(scope, ym, err))
			continue
		}
		for _, e := range b.Entries {
			if e.Matches(query) {
				res.Matches = append(res.Matches, Match{Scope: scope, YearMonth: ym, Entry: e})
			}
		}
	}
	return res, nil
}

// LoadOne returns the archived entry for sessionID. Bundles are scanned
// newest first. When nothing matches the error wraps ErrNotFound, joined
// with any bundle failures met along the way.
func (s *Store) LoadOne(scope, sessionID string) (*Match, error) {
	months, err := s.Bundles(scope)
	if err != nil {
		return nil, err
	}

	if s.index != nil {
		ym, ok, err := s.index.Lookup(context.Background(), scope, sessionID)
		switch {
		case err != nil:
			s.log.Warn("archive index lookup failed", "scope", scope, "session_id", sessionID, "error", err)
		case ok:
			if m := s.findIn(scope, ym, sessionID); m != nil {
				return m, nil
			}
			s.log.Debug("stale archive index entry", "scope", scope, "session_id", sessionID, "year_month", ym)
		}
	}

	var failures []error
	for i := len(months) - 1; i >= 0; i-- {
		b, err := s.ReadBundle(scope, months[i])
		if err != nil {
			failures = append(failures, s.bundleFailure(scope, months[i], err))
			continue
		}
		for _, e := range b.Entries {
			if e.SessionID == sessionID {
				return &Match{Scope: scope, YearMonth: months[i], Entry: e}, nil
			}
		}
	}

	notFound := fmt.Errorf("%w: %s/%s", ErrNotFound, scope, sessionID)
	if len(failures) > 0 {
		return nil, errors.Join(append([]error{notFound}, failures...)...)
	}
	return nil, notFound
}

// Contains reports whether sessionID is archived in scope. Unreadable
// bundles are logged by LoadOne and do not count as a match.
func (s *Store) Contains(scope, sessionID string) (bool, error) {
	_, err := s.LoadOne(scope, sessionID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, err
}

func (s *Store) findIn(scope string, ym model.YearMonth, sessionID string) *Match {
	b, err := s.ReadBundle(scope, ym)
	if err != nil {
		return nil
	}
	for _, e := range b.Entries {
		if e.SessionID == sessionID {
			return &Match{Scope: scope, YearMonth: ym, Entry: e}
		}
	}
	return nil
}

func (s *Store) bundleFailure(scope string, ym model.YearMonth, err error) *BundleError {
	var be *BundleError
	if !errors.As(err, &be) {
		be = &BundleError{Path: BundlePath(s.root, scope, ym), Err: err}
	}
	s.log.Warn("skipping unreadable archive bundle", "path", be.Path, "error", be.Err)
	return be
}
