package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store for dev mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Session
	byKey map[string]string // classID|date -> id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]Session),
		byKey: make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func key(classID, date string) string { return classID + "|" + date }

// Upsert mirrors the Postgres ON CONFLICT semantics: an existing
// (class, date) row keeps its id and token.
func (m *MemoryStore) Upsert(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := m.byKey[key(s.ClassID, s.Date)]; ok {
		existing := m.byID[id]
		existing.IsOpen = s.IsOpen
		existing.Mode = s.Mode
		existing.UpdatedAt = now
		m.byID[id] = existing
		return existing, nil
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	m.byID[s.ID] = s
	m.byKey[key(s.ClassID, s.Date)] = s.ID
	return s, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) GetByClassDate(_ context.Context, classID, date string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key(classID, date)]
	if !ok {
		return nil, nil
	}
	s := m.byID[id]
	return &s, nil
}

func (m *MemoryStore) SetOpen(_ context.Context, id string, open bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.IsOpen = open
	s.UpdatedAt = time.Now().UTC()
	m.byID[id] = s
	return nil
}

func (m *MemoryStore) SetToken(_ context.Context, id, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.CurrentToken = tok
	s.UpdatedAt = time.Now().UTC()
	m.byID[id] = s
	return nil
}
