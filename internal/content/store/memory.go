// Package store provides the anchor pointer stores.
package store

import (
	"context"
	"sort"
	"sync"

	"civicledger/internal/content"
	"civicledger/pkg/domain"
	"civicledger/pkg/platform/sentinel"
)

type subjectKey struct {
	id domain.ContentID
	t  domain.ContentType
}

// Memory is a mutex-guarded pointer store for tests and single-process
// development.
type Memory struct {
	mu        sync.RWMutex
	byKey     map[domain.RecordKey]*content.Record
	bySubject map[subjectKey][]domain.RecordKey
}

func NewMemory() *Memory {
	return &Memory{
		byKey:     make(map[domain.RecordKey]*content.Record),
		bySubject: make(map[subjectKey][]domain.RecordKey),
	}
}

func (m *Memory) Save(_ context.Context, rec *content.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byKey[rec.Key]; exists {
		return sentinel.ErrConflict
	}
	cp := *rec
	m.byKey[rec.Key] = &cp
	sk := subjectKey{id: rec.SubjectID, t: rec.Type}
	m.bySubject[sk] = append(m.bySubject[sk], rec.Key)
	return nil
}

func (m *Memory) Latest(_ context.Context, subjectID domain.ContentID, t domain.ContentType) (*content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.bySubject[subjectKey{id: subjectID, t: t}]
	if len(keys) == 0 {
		return nil, sentinel.ErrNotFound
	}
	cp := *m.byKey[keys[len(keys)-1]]
	return &cp, nil
}

func (m *Memory) MarkDeleted(_ context.Context, key domain.RecordKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byKey[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.IsDeleted = true
	return nil
}

func (m *Memory) ListLatest(_ context.Context, limit int) ([]*content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*content.Record
	for _, keys := range m.bySubject {
		cp := *m.byKey[keys[len(keys)-1]]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
