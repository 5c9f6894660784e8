// Package store provides the identity pointer stores: an in-memory
// implementation for tests and single-process development, and a
// postgres implementation for deployment.
package store

import (
	"context"
	"sync"
	"time"

	"civicledger/internal/identity"
	"civicledger/pkg/domain"
	"civicledger/pkg/platform/sentinel"
)

// Memory is a mutex-guarded map store keyed by identity hash.
type Memory struct {
	mu     sync.RWMutex
	byHash map[domain.Hash32]*identity.Record
	byUser map[domain.UserID][]domain.Hash32
}

func NewMemory() *Memory {
	return &Memory{
		byHash: make(map[domain.Hash32]*identity.Record),
		byUser: make(map[domain.UserID][]domain.Hash32),
	}
}

func (m *Memory) Save(_ context.Context, rec *identity.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.Status == identity.StatusActive {
		for _, h := range m.byUser[rec.UserID] {
			existing := m.byHash[h]
			if existing.Status == identity.StatusActive && existing.IdentityHash != rec.IdentityHash {
				return sentinel.ErrConflict
			}
		}
	}

	cp := *rec
	if _, seen := m.byHash[rec.IdentityHash]; !seen {
		m.byUser[rec.UserID] = append(m.byUser[rec.UserID], rec.IdentityHash)
	}
	m.byHash[rec.IdentityHash] = &cp
	return nil
}

func (m *Memory) FindByUser(_ context.Context, userID domain.UserID) (*identity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := m.byUser[userID]
	if len(hashes) == 0 {
		return nil, sentinel.ErrNotFound
	}
	// Latest record wins; an active one wins over everything.
	var latest *identity.Record
	for _, h := range hashes {
		rec := m.byHash[h]
		if rec.Status == identity.StatusActive {
			cp := *rec
			return &cp, nil
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) FindByHash(_ context.Context, hash domain.Hash32) (*identity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) UpdateStatus(_ context.Context, hash domain.Hash32, status identity.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byHash[hash]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetProfileHash(_ context.Context, hash domain.Hash32, profileHash domain.Hash32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byHash[hash]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.ProfileHash = &profileHash
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ListActive(_ context.Context, limit int) ([]*identity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*identity.Record
	for _, rec := range m.byHash {
		if rec.Status != identity.StatusActive {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
