// Package scanner measures the live store: total size, record count and a
// per-scope breakdown. Scanning never modifies anything on disk.
package scanner

import (
	"log/slog"
	"sort"

	"github.com/rcliao/memtier/internal/logger"
	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/store"
)

const bytesPerMB = 1024 * 1024

// Live is the part of the live store the scanner reads.
type Live interface {
	Scopes() ([]string, error)
	Walk(scope string, fn func(store.Ref) error) error
	Size(ref store.Ref) (int64, error)
}

// ScopeUsage is the live footprint of one scope.
type ScopeUsage struct {
	Scope   string  `json:"scope"`
	Bytes   int64   `json:"bytes"`
	MB      float64 `json:"mb"`
	Records int     `json:"records"`
}

// Report is the result of a scan. Totals are sums of the per-scope figures.
type Report struct {
	TotalBytes int64        `json:"totalBytes"`
	TotalMB    float64      `json:"totalMB"`
	Records    int          `json:"records"`
	Scopes     []ScopeUsage `json:"scopes"`
}

// Scope returns the usage for scope, zero if the scan did not see it.
func (r *Report) Scope(scope string) ScopeUsage {
	for _, u := range r.Scopes {
		if u.Scope == scope {
			return u
		}
	}
	return ScopeUsage{Scope: scope}
}

// Scanner walks the live store layout.
type Scanner struct {
	live Live
	log  *slog.Logger
}

// New returns a Scanner over live.
func New(live Live, log *slog.Logger) *Scanner {
	return &Scanner{live: live, log: logger.OrNop(log)}
}

// Scan measures scope, or every scope when scope is empty. A scope with no
// directory measures as zero. Records whose size cannot be read are skipped.
func (s *Scanner) Scan(scope string) (*Report, error) {
	scopes := []string{scope}
	if scope == "" {
		var err error
		if scopes, err = s.live.Scopes(); err != nil {
			return nil, err
		}
	} else if err := model.ValidateScope(scope); err != nil {
		return nil, err
	}

	rep := &Report{Scopes: make([]ScopeUsage, 0, len(scopes))}
	for _, sc := range scopes {
		u := ScopeUsage{Scope: sc}
		err := s.live.Walk(sc, func(ref store.Ref) error {
			size, err := s.live.Size(ref)
			if err != nil {
				s.log.Debug("skipping unreadable record", "scope", ref.Scope, "session_id", ref.SessionID, "error", err)
				return nil
			}
			u.Bytes += size
			u.Records++
			return nil
		})
		if err != nil {
			return nil, err
		}
		u.MB = ToMB(u.Bytes)
		rep.Scopes = append(rep.Scopes, u)
		rep.TotalBytes += u.Bytes
		rep.Records += u.Records
	}
	sort.Slice(rep.Scopes, func(i, j int) bool { return rep.Scopes[i].Scope < rep.Scopes[j].Scope })
	rep.TotalMB = ToMB(rep.TotalBytes)
	return rep, nil
}

// ScopeBytes returns the live size of a single scope in bytes.
func (s *Scanner) ScopeBytes(scope string) (int64, error) {
	rep, err := s.Scan(scope)
	if err != nil {
		return 0, err
	}
	return rep.Scope(scope).Bytes, nil
}

// ToMB converts bytes to mebibytes.
func ToMB(b int64) float64 {
	return float64(b) / bytesPerMB
}
