package eviction

import (
	"fmt"
	"sort"

	"github.com/rcliao/memtier/internal/scanner"
)

// AgeParams holds parameters for age-based archival.
type AgeParams struct {
	Scope         string // empty means every scope
	RetentionDays int
	// Limit caps how many candidates one call processes; zero means no cap.
	Limit int
}

// ThresholdParams holds parameters for size-based archival.
type ThresholdParams struct {
	Scope    string // empty means every scope, each against TargetMB
	TargetMB float64
}

// ScopeResult summarises one scope's share of a run.
type ScopeResult struct {
	Scope      string  `json:"scope"`
	Archived   int     `json:"archived"`
	FreedBytes int64   `json:"freedBytes"`
	BeforeMB   float64 `json:"beforeMB,omitempty"`
	AfterMB    float64 `json:"afterMB,omitempty"`
	Exhausted  bool    `json:"exhausted,omitempty"`
}

// Result describes the outcome of a batch run, including partial failure.
type Result struct {
	Archived   int           `json:"archived"`
	FreedBytes int64         `json:"freedBytes"`
	FreedMB    float64       `json:"freedMB"`
	Scopes     []ScopeResult `json:"scopes"`
	// Exhausted is set when a scope stayed over target after every
	// candidate had been tried.
	Exhausted bool      `json:"exhausted,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
	Warnings  []Warning `json:"warnings,omitempty"`

	byScope map[string]*ScopeResult
}

// CheckResult is the outcome of CheckAndArchive.
type CheckResult struct {
	Triggered bool `json:"triggered"`
	Result
}

func (r *Result) scope(name string) *ScopeResult {
	if r.byScope == nil {
		r.byScope = map[string]*ScopeResult{}
	}
	sr, ok := r.byScope[name]
	if !ok {
		sr = &ScopeResult{Scope: name}
		r.byScope[name] = sr
	}
	return sr
}

func (r *Result) archived(c Candidate) {
	sr := r.scope(c.Scope)
	sr.Archived++
	sr.FreedBytes += c.SizeBytes
	r.Archived++
	r.FreedBytes += c.SizeBytes
	r.FreedMB = scanner.ToMB(r.FreedBytes)
}

func (r *Result) finish() {
	r.Scopes = make([]ScopeResult, 0, len(r.byScope))
	for _, sr := range r.byScope {
		r.Scopes = append(r.Scopes, *sr)
	}
	sort.Slice(r.Scopes, func(i, j int) bool { return r.Scopes[i].Scope < r.Scopes[j].Scope })
}

// ArchiveByAge archives every record not used for at least RetentionDays,
// oldest last use first. Each record goes to the bundle of its own creation
// month. A failure on one record is reported and the run continues.
func (e *Engine) ArchiveByAge(p AgeParams) (*Result, error) {
	if p.RetentionDays <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetention, p.RetentionDays)
	}

	set, err := e.FindCandidates(p.Scope, p.RetentionDays)
	if err != nil {
		return nil, err
	}
	cands := set.Candidates
	SortLRU(cands)
	if p.Limit > 0 && len(cands) > p.Limit {
		cands = cands[:p.Limit]
	}

	res := &Result{Warnings: set.Warnings}
	for _, c := range cands {
		if f := e.archiveOne(c); f != nil {
			res.Failures = append(res.Failures, *f)
			continue
		}
		res.archived(c)
	}
	res.finish()

	e.log.Info("age-based archival finished",
		"scope", scopeLabel(p.Scope), "retention_days", p.RetentionDays,
		"archived", res.Archived, "freed_bytes", res.FreedBytes, "failures", len(res.Failures))
	return res, nil
}

// ArchiveToThreshold evicts least recently used records until the scope's
// measured size is at or under TargetMB. No minimum age applies. When no
// scope is given every scope is held to TargetMB on its own, the scope
// furthest over budget first. Running out of candidates is reported through
// Exhausted, not as an error.
func (e *Engine) ArchiveToThreshold(p ThresholdParams) (*Result, error) {
	if p.TargetMB <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, p.TargetMB)
	}

	rep, err := e.scan.Scan(p.Scope)
	if err != nil {
		return nil, err
	}
	return e.drain(overBudget(rep, p.Scope, p.TargetMB), p.Scope, p.TargetMB)
}

func (e *Engine) drain(scopes []scanner.ScopeUsage, label string, targetMB float64) (*Result, error) {
	res := &Result{}
	for _, su := range scopes {
		if err := e.drainScope(su.Scope, targetMB, res); err != nil {
			return nil, err
		}
	}
	res.finish()

	e.log.Info("size-based archival finished",
		"scope", scopeLabel(label), "target_mb", targetMB,
		"archived", res.Archived, "freed_bytes", res.FreedBytes,
		"exhausted", res.Exhausted, "failures", len(res.Failures))
	return res, nil
}

func (e *Engine) drainScope(scope string, targetMB float64, res *Result) error {
	set, err := e.FindCandidates(scope, 0)
	if err != nil {
		return err
	}
	res.Warnings = append(res.Warnings, set.Warnings...)
	pool := set.Candidates
	SortLRU(pool)

	sr := res.scope(scope)
	for i := 0; ; {
		rep, err := e.scan.Scan(scope)
		if err != nil {
			return err
		}
		sizeMB := rep.Scope(scope).MB
		if i == 0 {
			sr.BeforeMB = sizeMB
		}
		sr.AfterMB = sizeMB
		if sizeMB <= targetMB {
			return nil
		}
		if i >= len(pool) {
			sr.Exhausted = true
			res.Exhausted = true
			e.log.Warn("no candidates left above size target",
				"scope", scope, "size_mb", sizeMB, "target_mb", targetMB)
			return nil
		}

		c := pool[i]
		i++
		if f := e.archiveOne(c); f != nil {
			res.Failures = append(res.Failures, *f)
			continue
		}
		res.archived(c)
	}
}

// LowWaterRatio is the fraction of the target that CheckAndArchive drains
// down to once triggered, so a store hovering at the target is not evicted
// one record per write.
const LowWaterRatio = 0.8

// CheckAndArchive measures the live store and, only if a scope is over
// TargetMB, runs ArchiveToThreshold down to LowWaterRatio of the target.
// Record writers call this right after persisting a record.
func (e *Engine) CheckAndArchive(p ThresholdParams) (*CheckResult, error) {
	if p.TargetMB <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, p.TargetMB)
	}

	rep, err := e.scan.Scan(p.Scope)
	if err != nil {
		return nil, err
	}
	over := overBudget(rep, p.Scope, p.TargetMB)
	if len(over) == 0 {
		return &CheckResult{Triggered: false, Result: Result{Scopes: []ScopeResult{}}}, nil
	}

	e.log.Debug("live store over size target", "scope", scopeLabel(p.Scope), "total_mb", rep.TotalMB, "target_mb", p.TargetMB)
	res, err := e.drain(over, p.Scope, p.TargetMB*LowWaterRatio)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Triggered: true, Result: *res}, nil
}

// overBudget returns the scopes above targetMB, furthest over first, with
// the scope name breaking ties.
func overBudget(rep *scanner.Report, scope string, targetMB float64) []scanner.ScopeUsage {
	var over []scanner.ScopeUsage
	for _, su := range rep.Scopes {
		if scope != "" && su.Scope != scope {
			continue
		}
		if su.MB > targetMB {
			over = append(over, su)
		}
	}
	sort.SliceStable(over, func(i, j int) bool {
		if over[i].Bytes != over[j].Bytes {
			return over[i].Bytes > over[j].Bytes
		}
		return over[i].Scope < over[j].Scope
	})
	return over
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "all"
	}
	return scope
}
