package services

import (
	"sync"

	"reconciliation-service/models"
)

// PassStore keeps recent passes in memory. A pass is derived data;
// losing it on restart only costs the operator a re-run.
type PassStore struct {
	mu     sync.RWMutex
	passes map[string]*models.ReconciliationPass
	order  []string
	limit  int
}

func NewPassStore(limit int) *PassStore {
	if limit < 1 {
		limit = 1
	}
	return &PassStore{
		passes: make(map[string]*models.ReconciliationPass),
		limit:  limit,
	}
}

func (s *PassStore) Put(pass *models.ReconciliationPass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes[pass.ID] = pass
	s.order = append(s.order, pass.ID)

	for len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.passes, oldest)
	}
}

func (s *PassStore) Get(id string) (*models.ReconciliationPass, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pass, ok := s.passes[id]
	return pass, ok
}

func (s *PassStore) Latest() (*models.ReconciliationPass, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, false
	}
	return s.passes[s.order[len(s.order)-1]], true
}
