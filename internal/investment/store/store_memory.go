package store

import (
	"context"
	"sync"

	"zeron/internal/investment/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
)

// InMemoryStore keeps investments in a map. Favors clarity over performance.
type InMemoryStore struct {
	mu          sync.RWMutex
	investments map[domain.InvestmentID]models.Investment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{investments: make(map[domain.InvestmentID]models.Investment)}
}

func (s *InMemoryStore) Create(_ context.Context, inv *models.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.investments[inv.ID]; exists {
		return sentinel.ErrConflict
	}
	s.investments[inv.ID] = *inv
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.InvestmentID) (*models.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inv, ok := s.investments[id]; ok {
		return &inv, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID domain.UserID) ([]*models.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Investment
	for _, inv := range s.investments {
		if inv.UserID == userID {
			captured := inv
			out = append(out, &captured)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByProperty(_ context.Context, propertyID domain.PropertyID) ([]*models.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Investment
	for _, inv := range s.investments {
		if inv.PropertyID == propertyID {
			captured := inv
			out = append(out, &captured)
		}
	}
	return out, nil
}
