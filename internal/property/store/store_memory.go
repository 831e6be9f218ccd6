package store

import (
	"context"
	"sync"
	"time"

	"zeron/internal/property/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
)

// InMemoryStore keeps properties in a keyed table. Each entry carries its own
// mutex so reservations against one property serialize without blocking the
// rest of the inventory; the outer lock only guards map membership.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.PropertyID]*entry
}

type entry struct {
	mu sync.Mutex
	p  models.Property
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[domain.PropertyID]*entry)}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.entries[p.ID] = &entry{p: *p}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.PropertyID) (*models.Property, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p
	return &p, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Property, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		p := e.p
		e.mu.Unlock()
		out = append(out, &p)
	}
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, p *models.Property) error {
	e, err := s.entry(p.ID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// Inventory fields move only through Reserve/Release; keep them.
	p.AvailableShares = e.p.AvailableShares
	p.InvestorCount = e.p.InvestorCount
	e.p = *p
	return nil
}

func (s *InMemoryStore) MarkDeleted(ctx context.Context, id domain.PropertyID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.Status == models.PropertyStatusDeleted {
		return sentinel.ErrInvalidState
	}
	e.p.Status = models.PropertyStatusDeleted
	e.p.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) Reserve(_ context.Context, id domain.PropertyID, shares int) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if shares > e.p.AvailableShares {
		return e.p.AvailableShares, sentinel.ErrConflict
	}
	e.p.AvailableShares -= shares
	e.p.InvestorCount++
	if e.p.AvailableShares == 0 {
		e.p.Status = models.PropertyStatusSoldOut
	}
	return e.p.AvailableShares, nil
}

func (s *InMemoryStore) Release(_ context.Context, id domain.PropertyID, shares int) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.AvailableShares+shares > e.p.TotalShares {
		return sentinel.ErrInvalidState
	}
	e.p.AvailableShares += shares
	if e.p.InvestorCount > 0 {
		e.p.InvestorCount--
	}
	if e.p.Status == models.PropertyStatusSoldOut && e.p.AvailableShares > 0 {
		e.p.Status = models.PropertyStatusActive
	}
	return nil
}

func (s *InMemoryStore) entry(id domain.PropertyID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e, nil
}
