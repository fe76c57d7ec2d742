// Package model defines the core memory record and archive data types.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// GlobalScope is the shared pool that is not tied to any vault or node.
const GlobalScope = "global"

// ErrInvalidScope is returned for scope names that cannot be used as a
// directory under the store root.
var ErrInvalidScope = errors.New("invalid scope")

// Usage tracks how recently and how often a record has been used.
type Usage struct {
	LastUsed  time.Time `json:"lastUsed"`
	TimesUsed int       `json:"timesUsed,omitempty"`
}

// Metadata is the metadata.json document stored next to a record's content.
type Metadata struct {
	SessionID string   `json:"sessionId"`
	NodeID    string   `json:"nodeId"`
	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Usage     Usage    `json:"usage"`
}

// Record is a live memory record.
type Record struct {
	Metadata
	Scope     string    `json:"scope"`
	CreatedAt time.Time `json:"createdAt"`
	Content   string    `json:"content,omitempty"`
	SizeBytes int64     `json:"sizeBytes"`
}

// ArchivedEntry is a frozen copy of a record inside an archive bundle.
type ArchivedEntry struct {
	SessionID        string    `json:"sessionId"`
	NodeID           string    `json:"nodeId"`
	Title            string    `json:"title,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	Content          string    `json:"content"`
	OriginalLastUsed time.Time `json:"originalLastUsed"`
	ArchivedAt       time.Time `json:"archivedAt"`
}

// Bundle is the on-disk shape of one month of archived entries.
type Bundle struct {
	Entries []ArchivedEntry `json:"entries"`
}

// NewArchivedEntry freezes a record's metadata and content.
func NewArchivedEntry(meta Metadata, content string, archivedAt time.Time) ArchivedEntry {
	return ArchivedEntry{
		SessionID:        meta.SessionID,
		NodeID:           meta.NodeID,
		Title:            meta.Title,
		Summary:          meta.Summary,
		Tags:             meta.Tags,
		Content:          content,
		OriginalLastUsed: meta.Usage.LastUsed,
		ArchivedAt:       archivedAt.UTC(),
	}
}

// Matches reports whether title, summary or any tag contains query,
// ignoring case.
func (e ArchivedEntry) Matches(query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Summary), q) {
		return true
	}
	for _, t := range e.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// YearMonth is an archive partition key such as "2026-03".
type YearMonth string

// YearMonthOf returns the partition key for t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// Valid reports whether ym is a well-formed YYYY-MM key.
func (ym YearMonth) Valid() bool {
	_, err := time.Parse("2006-01", string(ym))
	return err == nil
}

// ValidateScope checks that scope can be used as a single path element.
func ValidateScope(scope string) error {
	switch {
	case scope == "":
		return fmt.Errorf("%w: empty", ErrInvalidScope)
	case scope == "." || scope == "..":
		return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	case strings.HasPrefix(scope, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidScope, scope)
	case strings.ContainsAny(scope, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidScope, scope)
	}
	return nil
}
