package record

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a map-backed Store for dev mode and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]map[string]Record // sessionID -> studentID -> record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]map[string]Record)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Upsert(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs[rec.SessionID] == nil {
		m.recs[rec.SessionID] = make(map[string]Record)
	}
	_, existed := m.recs[rec.SessionID][rec.StudentID]
	m.recs[rec.SessionID][rec.StudentID] = rec
	return !existed, nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID, studentID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[sessionID][studentID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) MarkVerified(_ context.Context, sessionID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[sessionID][studentID]
	if !ok || rec.IsVerified {
		return ErrNoPendingRecord
	}
	rec.IsVerified = true
	m.recs[sessionID][studentID] = rec
	return nil
}

func (m *MemoryStore) DeletePending(_ context.Context, sessionID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[sessionID][studentID]
	if !ok || rec.IsVerified {
		return ErrNoPendingRecord
	}
	delete(m.recs[sessionID], studentID)
	return nil
}

func (m *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]Record, 0, len(m.recs[sessionID]))
	for _, rec := range m.recs[sessionID] {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].RecordedAt.Equal(recs[j].RecordedAt) {
			return recs[i].StudentID < recs[j].StudentID
		}
		return recs[i].RecordedAt.Before(recs[j].RecordedAt)
	})
	return recs, nil
}
