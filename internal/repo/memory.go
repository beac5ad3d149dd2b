package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
)

// MemoryProjectStore — хранилище проектов в памяти для CLI и тестов.
//
// Контракт совпадает с ProjectRepo: наружу отдаются только копии.
type MemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*domain.Project
	leases   map[uuid.UUID]lease

	now func() time.Time
}

type lease struct {
	owner string
	until time.Time
}

// NewMemoryProjectStore создаёт пустое хранилище.
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{
		projects: make(map[uuid.UUID]*domain.Project),
		leases:   make(map[uuid.UUID]lease),
		now:      time.Now,
	}
}

// Create сохраняет новый проект.
func (s *MemoryProjectStore) Create(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("%w: project %s", ErrAlreadyExists, p.ID)
	}
	s.projects[p.ID] = p.Clone()
	return nil
}

// Get возвращает проект по ID.
func (s *MemoryProjectStore) Get(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Update записывает полное состояние проекта.
// ErrStaleWrite, если журнал короче сохранённого.
func (s *MemoryProjectStore) Update(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.projects[p.ID]; ok && len(p.Trace) < len(prev.Trace) {
		return fmt.Errorf("%w: project %s has %d trace steps, write has %d",
			ErrStaleWrite, p.ID, len(prev.Trace), len(p.Trace))
	}
	s.projects[p.ID] = p.Clone()
	return nil
}

// Claim берёт или продлевает аренду проекта.
func (s *MemoryProjectStore) Claim(_ context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return false, ErrNotFound
	}
	now := s.now()
	if l, ok := s.leases[id]; ok && l.owner != owner && l.until.After(now) {
		return false, nil
	}
	s.leases[id] = lease{owner: owner, until: now.Add(ttl)}
	return true, nil
}

// Release снимает аренду владельца.
func (s *MemoryProjectStore) Release(_ context.Context, id uuid.UUID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[id]; ok && l.owner == owner {
		delete(s.leases, id)
	}
	return nil
}

// List возвращает проекты, новые первыми.
func (s *MemoryProjectStore) List(_ context.Context, f ListFilter) ([]ProjectSummary, error) {
	s.mu.RLock()
	out := make([]ProjectSummary, 0, len(s.projects))
	for _, p := range s.projects {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, summarize(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// Unfinished возвращает ID проектов, не дошедших до терминального статуса
// и не арендованных.
func (s *MemoryProjectStore) Unfinished(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var ids []uuid.UUID
	for id, p := range s.projects {
		if p.Status.IsTerminal() || p.Failed() {
			continue
		}
		if l, ok := s.leases[id]; ok && l.until.After(now) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
