package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/memtier/internal/logger"
	"github.com/rcliao/memtier/internal/model"
)

// FSStore implements Store on the local filesystem.
type FSStore struct {
	root     string
	log      *slog.Logger
	now      func() time.Time
	archived ArchiveChecker
}

var _ Store = (*FSStore)(nil)

// writeFile is swapped in tests to fail content writes.
var writeFile = os.WriteFile

// Option configures an FSStore.
type Option func(*FSStore)

// WithArchiveChecker makes Put refuse session ids the archive already holds.
func WithArchiveChecker(c ArchiveChecker) Option {
	return func(s *FSStore) {
		s.archived = c
	}
}

// NewFSStore opens (creating if needed) a live store rooted at root.
func NewFSStore(root string, log *slog.Logger, opts ...Option) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	s := &FSStore{root: root, log: logger.OrNop(log), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the directory the store lives in.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func (s *FSStore) Put(p PutParams) (*model.Record, error) {
	if err := model.ValidateScope(p.Scope); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	lastUsed := p.LastUsed
	if lastUsed.IsZero() {
		lastUsed = created
	}

	id := p.SessionID
	if id == "" {
		id = s.newID(now)
	} else if strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("invalid session id %q", id)
	}

	if _, err := s.Find(p.Scope, id); err == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrExists, p.Scope, id)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if p.SessionID != "" && s.archived != nil {
		ok, err := s.archived.Contains(p.Scope, id)
		if err != nil {
			return nil, fmt.Errorf("check archive: %w", err)
		}
		if ok {
			return nil, fmt.Errorf("%w: %s/%s is archived", ErrExists, p.Scope, id)
		}
	}

	created = created.UTC()
	ref := Ref{
		Scope:     p.Scope,
		SessionID: id,
		Created:   time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC),
		Dir:       RecordDir(s.root, p.Scope, created, id),
	}
	if err := os.MkdirAll(ref.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	if err := writeFile(filepath.Join(ref.Dir, ContentFile), []byte(p.Content), 0o644); err != nil {
		s.Delete(ref)
		return nil, fmt.Errorf("write content: %w", err)
	}

	meta := model.Metadata{
		SessionID: id,
		NodeID:    p.Scope,
		Title:     p.Title,
		Summary:   p.Summary,
		Tags:      p.Tags,
		Usage:     model.Usage{LastUsed: lastUsed.UTC()},
	}
	if err := s.writeMetadata(ref, meta); err != nil {
		s.Delete(ref)
		return nil, err
	}

	size, _ := s.Size(ref)
	return &model.Record{
		Metadata:  meta,
		Scope:     p.Scope,
		CreatedAt: ref.Created,
		Content:   p.Content,
		SizeBytes: size,
	}, nil
}

func (s *FSStore) Get(p GetParams) (*model.Record, error) {
	ref, err := s.Find(p.Scope, p.SessionID)
	if err != nil {
		return nil, err
	}
	meta, err := s.ReadMetadata(ref)
	if err != nil {
		return nil, err
	}
	content, err := s.ReadContent(ref)
	if err != nil {
		return nil, err
	}

	if p.Touch {
		meta.Usage.LastUsed = s.now().UTC()
		meta.Usage.TimesUsed++
		if err := s.writeMetadata(ref, meta); err != nil {
			return nil, err
		}
	}

	size, _ := s.Size(ref)
	return &model.Record{
		Metadata:  meta,
		Scope:     ref.Scope,
		CreatedAt: ref.Created,
		Content:   content,
		SizeBytes: size,
	}, nil
}

func (s *FSStore) List(p ListParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	var records []model.Record
	err := s.Walk(p.Scope, func(ref Ref) error {
		meta, err := s.ReadMetadata(ref)
		if err != nil {
			s.log.Warn("skipping record with unreadable metadata",
				"scope", ref.Scope, "session_id", ref.SessionID, "error", err)
			return nil
		}
		if !hasAllTags(meta.Tags, p.Tags) {
			return nil
		}
		size, _ := s.Size(ref)
		records = append(records, model.Record{
			Metadata:  meta,
			Scope:     ref.Scope,
			CreatedAt: ref.Created,
			SizeBytes: size,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Usage.LastUsed.After(records[j].Usage.LastUsed)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *FSStore) Rm(p RmParams) error {
	ref, err := s.Find(p.Scope, p.SessionID)
	if err != nil {
		return err
	}
	return s.Delete(ref)
}

// errStopWalk ends a Walk once the wanted record has been found.
var errStopWalk = errors.New("stop walk")

// Find locates a live record by scope and sessionId.
func (s *FSStore) Find(scope, sessionID string) (Ref, error) {
	if err := model.ValidateScope(scope); err != nil {
		return Ref{}, err
	}
	var found Ref
	err := s.Walk(scope, func(ref Ref) error {
		if ref.SessionID == sessionID {
			found = ref
			return errStopWalk
		}
		return nil
	})
	switch {
	case errors.Is(err, errStopWalk):
		return found, nil
	case err != nil:
		return Ref{}, err
	}
	return Ref{}, fmt.Errorf("%w: %s/%s", ErrNotFound, scope, sessionID)
}

// ReadMetadata parses a record's metadata document. Parse failures wrap
// ErrCorruptMetadata.
func (s *FSStore) ReadMetadata(ref Ref) (model.Metadata, error) {
	var meta model.Metadata
	data, err := os.ReadFile(filepath.Join(ref.Dir, MetadataFile))
	if err != nil {
		return meta, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if meta.Usage.LastUsed.IsZero() {
		return meta, fmt.Errorf("%w: missing usage.lastUsed", ErrCorruptMetadata)
	}
	if meta.SessionID == "" {
		meta.SessionID = ref.SessionID
	}
	if meta.NodeID == "" {
		meta.NodeID = ref.Scope
	}
	return meta, nil
}

// ReadContent returns a record's content blob. A missing content file reads
// as empty content.
func (s *FSStore) ReadContent(ref Ref) (string, error) {
	data, err := os.ReadFile(filepath.Join(ref.Dir, ContentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}

// writeMetadata replaces metadata.json through a temp file and rename.
func (s *FSStore) writeMetadata(ref Ref, meta model.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tmp, err := os.CreateTemp(ref.Dir, ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(ref.Dir, MetadataFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
