package store

import (
	"context"
	"sync"

	"zeron/internal/otp/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
)

type pairKey struct {
	user domain.UserID
	op   models.Operation
}

// InMemoryStore keeps challenges in a keyed table plus a pending index per
// (requester, operation) pair. One mutex covers both; challenge traffic is
// low and the transitions must observe a consistent view anyway.
type InMemoryStore struct {
	mu         sync.Mutex
	challenges map[domain.ChallengeID]*models.Challenge
	pending    map[pairKey]domain.ChallengeID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		challenges: make(map[domain.ChallengeID]*models.Challenge),
		pending:    make(map[pairKey]domain.ChallengeID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.challenges[c.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *c
	s.challenges[c.ID] = &cp
	if c.Status == models.ChallengeStatusPending {
		s.pending[pairKey{c.RequestedBy, c.Operation}] = c.ID
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ChallengeID) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) FindPending(_ context.Context, requestedBy domain.UserID, op models.Operation) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pending[pairKey{requestedBy, op}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c, ok := s.challenges[id]
	if !ok || c.Status != models.ChallengeStatusPending {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) Transition(_ context.Context, id domain.ChallengeID, from, to models.ChallengeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	if from == models.ChallengeStatusPending {
		key := pairKey{c.RequestedBy, c.Operation}
		if s.pending[key] == id {
			delete(s.pending, key)
		}
	}
	return true, nil
}

func (s *InMemoryStore) IncrementAttempts(_ context.Context, id domain.ChallengeID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}
