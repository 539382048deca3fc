package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	version int64
	expires time.Time
}

// memoryStore keeps serialized records so callers never share state with
// the store, matching the Redis driver.
type memoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	return &memoryStore{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

// live returns the unexpired entry for id. Callers hold mu.
func (s *memoryStore) live(id string) (memoryEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, id)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *memoryStore) put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	s.entries[rec.WidgetID] = memoryEntry{data: data, version: rec.Version, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *memoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return ErrInvalidConfig
	}
	if _, ok := s.live(rec.WidgetID); ok {
		return ErrAlreadyExists
	}

	now := s.now()
	rec.CreatedAt, rec.UpdatedAt, rec.Version = now, now, 1
	return s.put(rec)
}

func (s *memoryStore) Get(_ context.Context, widgetID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(widgetID)
	if !ok {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(e.data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	e.expires = s.now().Add(s.ttl)
	s.entries[widgetID] = e
	return &rec, nil
}

func (s *memoryStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(rec.WidgetID)
	if !ok {
		return ErrNotFound
	}
	if e.version != rec.Version {
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = s.now()
	return s.put(rec)
}

func (s *memoryStore) Delete(_ context.Context, widgetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, widgetID)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
