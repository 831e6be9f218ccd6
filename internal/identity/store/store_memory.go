// Package store provides the in-memory user directory. It favors clarity over
// performance; a real deployment fronts the accounts service instead.
package store

import (
	"context"
	"sync"

	"zeron/internal/identity"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
)

type InMemoryDirectory struct {
	mu    sync.RWMutex
	users map[domain.UserID]identity.Identity
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{users: make(map[domain.UserID]identity.Identity)}
}

// Seed inserts or replaces a user record. Intended for wiring and tests.
func (s *InMemoryDirectory) Seed(ident identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[ident.UserID] = ident
}

func (s *InMemoryDirectory) FindByID(_ context.Context, userID domain.UserID) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ident, ok := s.users[userID]; ok {
		return ident, nil
	}
	return identity.Identity{}, sentinel.ErrNotFound
}

func (s *InMemoryDirectory) UpdateRole(_ context.Context, userID domain.UserID, role identity.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	ident.Role = role
	s.users[userID] = ident
	return nil
}
