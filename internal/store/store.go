// Package store provides the live memory store: records laid out on disk as
// {scope}/{YYYY}/{MM}/{DD}/{sessionId}/ with a content file and a metadata
// document.
package store

import (
	"errors"
	"time"

	"github.com/rcliao/memtier/internal/model"
)

var (
	// ErrNotFound is returned when no live record matches (scope, sessionId).
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned by Put when the sessionId is already live or
	// archived in the scope.
	ErrExists = errors.New("record already exists")

	// ErrCorruptMetadata is returned when a record's metadata cannot be parsed.
	ErrCorruptMetadata = errors.New("corrupt metadata")
)

// PutParams holds parameters for storing a record.
type PutParams struct {
	Scope     string
	SessionID string // generated when empty
	Title     string
	Summary   string
	Tags      []string
	Content   string
	CreatedAt time.Time // defaults to now
	LastUsed  time.Time // defaults to CreatedAt
}

// GetParams holds parameters for retrieving a record.
type GetParams struct {
	Scope     string
	SessionID string
	// Touch records a use: timesUsed is incremented and lastUsed set to now.
	Touch bool
}

// ListParams holds parameters for listing records.
type ListParams struct {
	Scope string // empty lists every scope
	Tags  []string
	Limit int
}

// RmParams holds parameters for deleting a record.
type RmParams struct {
	Scope     string
	SessionID string
}

// ArchiveChecker reports whether a session already sits in the archive tier.
type ArchiveChecker interface {
	Contains(scope, sessionID string) (bool, error)
}

// Store defines the live record storage interface.
type Store interface {
	// Put writes a new record. Returns the created record.
	Put(p PutParams) (*model.Record, error)

	// Get retrieves a record with its content.
	Get(p GetParams) (*model.Record, error)

	// List lists records matching the given filters, most recently used first.
	List(p ListParams) ([]model.Record, error)

	// Rm deletes a record.
	Rm(p RmParams) error
}
