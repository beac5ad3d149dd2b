package offers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
)

// MemoryStore — Offer Store в памяти.
//
// SetOffers заменяет список целиком; чтение и запись идут через копии.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]map[string][]domain.Offer
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[uuid.UUID]map[string][]domain.Offer)}
}

// GetOffers возвращает предложения по MPN проекта.
func (s *MemoryStore) GetOffers(_ context.Context, projectID uuid.UUID, mpn string) ([]domain.Offer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offers, ok := s.data[projectID][mpn]
	if !ok {
		return nil, false, nil
	}
	return domain.CloneOffers(offers), true, nil
}

// SetOffers заменяет предложения по MPN проекта.
func (s *MemoryStore) SetOffers(_ context.Context, projectID uuid.UUID, mpn string, offers []domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMPN, ok := s.data[projectID]
	if !ok {
		byMPN = make(map[string][]domain.Offer)
		s.data[projectID] = byMPN
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	byMPN[mpn] = domain.CloneOffers(offers)
	return nil
}

// Count возвращает количество MPN с предложениями для проекта.
func (s *MemoryStore) Count(projectID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[projectID])
}
