package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type MemoryOptions struct {
	TTL             time.Duration
	MaxEntries      int
	PersistencePath string
}

// MemoryStore keeps entries in process and optionally mirrors them to a JSON
// file that is reloaded on construction.
type MemoryStore struct {
	opts   MemoryOptions
	logger Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemoryStore(opts MemoryOptions, log Logger) *MemoryStore {
	s := &MemoryStore{
		opts:    opts,
		logger:  log,
		now:     time.Now,
		entries: make(map[string][]Entry),
	}
	s.load()
	return s
}

func (s *MemoryStore) Append(ctx context.Context, category string, item interface{}, metadata map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	entry, err := newEntry(category, item, metadata, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.entries[category], entry)
	if s.opts.MaxEntries > 0 && len(list) > s.opts.MaxEntries {
		list = list[len(list)-s.opts.MaxEntries:]
	}
	s.entries[category] = list

	return s.persistLocked()
}

func (s *MemoryStore) Recent(ctx context.Context, category string, n int, filter Filter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
	}
	s.mu.Lock()
	list := s.entries[category]
	snapshot := make([]Entry, len(list))
	for i, e := range list {
		snapshot[len(list)-1-i] = e
	}
	s.mu.Unlock()

	return selectRecent(snapshot, s.now(), s.opts.TTL, n, filter), nil
}

func (s *MemoryStore) Clear(ctx context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == "" {
		s.entries = make(map[string][]Entry)
	} else {
		delete(s.entries, category)
	}
	s.logger.Info("archive cleared", map[string]interface{}{"category": category})
	return s.persistLocked()
}

func (s *MemoryStore) persistLocked() error {
	if s.opts.PersistencePath == "" {
		return nil
	}
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.PersistencePath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	tmp := s.opts.PersistencePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	if err := os.Rename(tmp, s.opts.PersistencePath); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	return nil
}

func (s *MemoryStore) load() {
	if s.opts.PersistencePath == "" {
		return
	}
	data, err := os.ReadFile(s.opts.PersistencePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read archive file", map[string]interface{}{
				"path":  s.opts.PersistencePath,
				"error": err.Error(),
			})
		}
		return
	}

	var entries map[string][]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Error("archive file is corrupt, starting empty", map[string]interface{}{
			"path":  s.opts.PersistencePath,
			"error": err.Error(),
		})
		return
	}
	if entries != nil {
		s.entries = entries
	}
	s.logger.Info("archive loaded from disk", map[string]interface{}{
		"path":       s.opts.PersistencePath,
		"categories": len(entries),
	})
}
