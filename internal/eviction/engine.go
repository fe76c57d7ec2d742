// Package eviction moves cold records from the live store into the archive,
// either by age (retention policy) or by size pressure (LRU until the scope
// fits under a target).
package eviction

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rcliao/memtier/internal/logger"
	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/scanner"
	"github.com/rcliao/memtier/internal/store"
)

const (
	// DefaultRetentionDays is the age-based eligibility floor.
	DefaultRetentionDays = 90

	// DefaultCacheSizeThresholdMB is the per-scope live size that triggers
	// size-based eviction.
	DefaultCacheSizeThresholdMB = 5.0
)

var (
	// ErrInvalidThreshold is returned for a non-positive size target.
	ErrInvalidThreshold = errors.New("size threshold must be positive")

	// ErrInvalidRetention is returned for a non-positive retention period.
	ErrInvalidRetention = errors.New("retention days must be positive")
)

// Live is the part of the live store the engine reads and deletes from.
type Live interface {
	Scopes() ([]string, error)
	Walk(scope string, fn func(store.Ref) error) error
	Size(ref store.Ref) (int64, error)
	ReadMetadata(ref store.Ref) (model.Metadata, error)
	ReadContent(ref store.Ref) (string, error)
	Delete(ref store.Ref) error
}

// Archiver receives evicted records.
type Archiver interface {
	Append(scope string, ym model.YearMonth, entry model.ArchivedEntry) error
}

// Measurer reports live store size.
type Measurer interface {
	Scan(scope string) (*scanner.Report, error)
}

// Engine runs eviction policies. It keeps no state between calls.
type Engine struct {
	live    Live
	archive Archiver
	scan    Measurer
	log     *slog.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = logger.OrNop(l)
	}
}

// WithClock overrides the time source used for ages and archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New returns an Engine wired to the live store, the archive and a scanner.
func New(live Live, archive Archiver, scan Measurer, opts ...Option) *Engine {
	e := &Engine{
		live:    live,
		archive: archive,
		scan:    scan,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
