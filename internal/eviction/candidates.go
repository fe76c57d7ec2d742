package eviction

import (
	"fmt"
	"sort"
	"time"

	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/store"
)

// Candidate is a live record eligible for archival. Candidates are computed
// per call and never persisted.
type Candidate struct {
	SessionID        string         `json:"sessionId"`
	Scope            string         `json:"scope"`
	SizeBytes        int64          `json:"sizeBytes"`
	DaysSinceLastUse int            `json:"daysSinceLastUse"`
	Created          time.Time      `json:"created"`
	Metadata         model.Metadata `json:"metadata"`

	ref store.Ref
}

// Warning describes a record left out of candidacy.
type Warning struct {
	Scope     string `json:"scope"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// CandidateSet is the result of candidate discovery.
type CandidateSet struct {
	Candidates []Candidate `json:"candidates"`
	Warnings   []Warning   `json:"warnings,omitempty"`
}

// FindCandidates returns the live records in scope (all scopes when empty)
// whose whole days since last use are at least retentionDays. Creation date
// plays no part. Records whose metadata cannot be read are excluded and
// reported as warnings.
func (e *Engine) FindCandidates(scope string, retentionDays int) (*CandidateSet, error) {
	if retentionDays < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetention, retentionDays)
	}
	if scope != "" {
		if err := model.ValidateScope(scope); err != nil {
			return nil, err
		}
	}

	now := e.now()
	set := &CandidateSet{Candidates: []Candidate{}}
	err := e.live.Walk(scope, func(ref store.Ref) error {
		meta, err := e.live.ReadMetadata(ref)
		if err != nil {
			e.log.Warn("excluding record with unreadable metadata",
				"scope", ref.Scope, "session_id", ref.SessionID, "error", err)
			set.Warnings = append(set.Warnings, Warning{
				Scope:     ref.Scope,
				SessionID: ref.SessionID,
				Message:   err.Error(),
			})
			return nil
		}

		days := DaysSince(now, meta.Usage.LastUsed)
		if days < retentionDays {
			return nil
		}

		size, err := e.live.Size(ref)
		if err != nil {
			e.log.Debug("skipping unreadable record", "scope", ref.Scope, "session_id", ref.SessionID, "error", err)
			return nil
		}
		set.Candidates = append(set.Candidates, Candidate{
			SessionID:        ref.SessionID,
			Scope:            ref.Scope,
			SizeBytes:        size,
			DaysSinceLastUse: days,
			Created:          ref.Created,
			Metadata:         meta,
			ref:              ref,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// DaysSince returns the whole days elapsed from last to now. A last-use time
// in the future counts as zero days.
func DaysSince(now, last time.Time) int {
	d := now.Sub(last)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// SortLRU orders candidates for size-pressure eviction: oldest last use
// first, then larger records first, then by scope and session id so the
// order is fully deterministic.
func SortLRU(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if !a.Metadata.Usage.LastUsed.Equal(b.Metadata.Usage.LastUsed) {
			return a.Metadata.Usage.LastUsed.Before(b.Metadata.Usage.LastUsed)
		}
		if a.SizeBytes != b.SizeBytes {
			return a.SizeBytes > b.SizeBytes
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.SessionID < b.SessionID
	})
}

// Failure records a candidate whose eviction did not complete.
type Failure struct {
	Scope     string `json:"scope"`
	SessionID string `json:"sessionId"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

const (
	stageRead   = "read"
	stageAppend = "append"
	stageDelete = "delete"
)

// archiveOne appends c to its creation-month bundle and then deletes the
// live record. If the delete fails the record stays live and the next run
// re-archives it, replacing the bundle entry.
func (e *Engine) archiveOne(c Candidate) *Failure {
	fail := func(stage string, err error) *Failure {
		e.log.Error("eviction failed",
			"scope", c.Scope, "session_id", c.SessionID, "stage", stage, "error", err)
		return &Failure{Scope: c.Scope, SessionID: c.SessionID, Stage: stage, Error: err.Error()}
	}

	content, err := e.live.ReadContent(c.ref)
	if err != nil {
		return fail(stageRead, err)
	}

	ym := model.YearMonthOf(c.Created)
	entry := model.NewArchivedEntry(c.Metadata, content, e.now())
	if err := e.archive.Append(c.Scope, ym, entry); err != nil {
		return fail(stageAppend, err)
	}
	if err := e.live.Delete(c.ref); err != nil {
		return fail(stageDelete, err)
	}

	e.log.Info("archived record",
		"scope", c.Scope, "session_id", c.SessionID, "year_month", ym,
		"days_since_last_use", c.DaysSinceLastUse, "size_bytes", c.SizeBytes)
	return nil
}
