package specialist

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/narrate"
)

// Registry — реестр специалистов по роли.
//
// Позволяет подменить реализацию отдельной роли при сборке процесса.
// Потокобезопасен.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[domain.Role]flow.Evaluator
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[domain.Role]flow.Evaluator),
	}
}

// DefaultRegistry создаёт реестр со стандартными специалистами.
func DefaultRegistry(knowledge flow.KnowledgeStore, narrator narrate.Narrator) *Registry {
	r := NewRegistry()
	r.Register(NewEngineering(knowledge, narrator))
	r.Register(NewSourcing(knowledge, narrator))
	r.Register(NewFinance(narrator))
	return r
}

// Register регистрирует специалиста под его ролью, заменяя прежнего.
func (r *Registry) Register(e flow.Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Role()] = e
}

// Get возвращает специалиста по роли.
// Возвращает ErrRoleNotFound, если роль не зарегистрирована.
func (r *Registry) Get(role domain.Role) (flow.Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.evaluators[role]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	return e, nil
}

// Roles возвращает зарегистрированные роли в алфавитном порядке.
func (r *Registry) Roles() []domain.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]domain.Role, 0, len(r.evaluators))
	for role := range r.evaluators {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Apply заполняет слоты специалистов в конфигурации движка.
func (r *Registry) Apply(cfg *flow.Config) error {
	var err error
	if cfg.Engineering, err = r.Get(domain.RoleEngineering); err != nil {
		return err
	}
	if cfg.Sourcing, err = r.Get(domain.RoleSourcing); err != nil {
		return err
	}
	if cfg.Finance, err = r.Get(domain.RoleFinance); err != nil {
		return err
	}
	return nil
}
