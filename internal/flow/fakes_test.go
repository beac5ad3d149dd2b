package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
)

// --- Project store ---

type memProjects struct {
	mu       sync.Mutex
	data     map[uuid.UUID]*domain.Project
	updates  int
	failOn   int // номер Update, начиная с которого хранилище отказывает (0 — никогда)
	onUpdate func(prev, next *domain.Project)
}

func newMemProjects() *memProjects {
	return &memProjects{data: make(map[uuid.UUID]*domain.Project)}
}

func (m *memProjects) Create(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[p.ID]; ok {
		return errors.New("duplicate project")
	}
	m.data[p.ID] = p.Clone()
	return nil
}

// seed создаёт проект в хранилище в обход движка.
func (m *memProjects) seed(t *testing.T, name string, items ...domain.LineItem) *domain.Project {
	t.Helper()
	p := domain.NewProject(name, domain.DefaultProjectContext(), items)
	if err := m.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func (m *memProjects) Get(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p.Clone(), nil
}

func (m *memProjects) Update(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.failOn > 0 && m.updates >= m.failOn {
		return errors.New("disk full")
	}
	if m.onUpdate != nil {
		m.onUpdate(m.data[p.ID], p)
	}
	m.data[p.ID] = p.Clone()
	return nil
}

func (m *memProjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// leasingProjects добавляет memProjects аренду, общую для нескольких движков.
type leasingProjects struct {
	*memProjects

	leaseMu sync.Mutex
	leases  map[uuid.UUID]string
	claims  int
}

func newLeasingProjects() *leasingProjects {
	return &leasingProjects{memProjects: newMemProjects(), leases: make(map[uuid.UUID]string)}
}

func (l *leasingProjects) Claim(_ context.Context, id uuid.UUID, owner string, _ time.Duration) (bool, error) {
	l.leaseMu.Lock()
	defer l.leaseMu.Unlock()
	l.claims++
	if held, ok := l.leases[id]; ok && held != owner {
		return false, nil
	}
	l.leases[id] = owner
	return true, nil
}

func (l *leasingProjects) Release(_ context.Context, id uuid.UUID, owner string) error {
	l.leaseMu.Lock()
	defer l.leaseMu.Unlock()
	if l.leases[id] == owner {
		delete(l.leases, id)
	}
	return nil
}

func (l *leasingProjects) held(id uuid.UUID) bool {
	l.leaseMu.Lock()
	defer l.leaseMu.Unlock()
	_, ok := l.leases[id]
	return ok
}

// --- Offer store ---

type memOffers struct {
	mu   sync.Mutex
	data map[string][]domain.Offer
	sets int
	err  error
}

func newMemOffers() *memOffers {
	return &memOffers{data: make(map[string][]domain.Offer)}
}

func offerKey(id uuid.UUID, mpn string) string { return id.String() + "/" + mpn }

func (m *memOffers) GetOffers(_ context.Context, id uuid.UUID, mpn string) ([]domain.Offer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.data[offerKey(id, mpn)]
	return domain.CloneOffers(o), ok, nil
}

func (m *memOffers) SetOffers(_ context.Context, id uuid.UUID, mpn string, offers []domain.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets++
	m.data[offerKey(id, mpn)] = domain.CloneOffers(offers)
	return nil
}

// --- Offer source ---

type stubSource struct {
	errs  map[string]error
	calls atomic.Int32
}

func (s *stubSource) Offers(_ context.Context, item domain.LineItem) ([]domain.Offer, error) {
	s.calls.Add(1)
	if err := s.errs[item.MPN]; err != nil {
		return nil, err
	}
	return []domain.Offer{{
		MPN:          item.MPN,
		SupplierID:   "digikey",
		SupplierName: "DigiKey",
		PriceBreaks:  []domain.PriceBreak{{MinQty: 1, UnitPrice: 1.0}, {MinQty: 100, UnitPrice: 0.5}},
		MOQ:          1,
		Stock:        1000,
		LeadTimeDays: 5,
		Authorized:   true,
	}}, nil
}

// --- Intel ---

type stubIntel struct {
	report *domain.MarketIntelReport
	err    error
	panics bool
}

func (s *stubIntel) Gather(context.Context, []domain.LineItem, domain.ProjectContext) (*domain.MarketIntelReport, error) {
	if s.panics {
		panic("scraper exploded")
	}
	return s.report, s.err
}

// --- Evaluators ---

type stubEvaluator struct {
	role    domain.Role
	err     error
	panics  bool
	nilOut  bool
	started chan<- domain.Role
	release <-chan struct{}

	mu    sync.Mutex
	input EvaluationInput
	calls int
}

func (s *stubEvaluator) Role() domain.Role { return s.role }

func (s *stubEvaluator) Evaluate(ctx context.Context, in EvaluationInput) (*domain.Assessment, error) {
	s.mu.Lock()
	s.input = in
	s.calls++
	s.mu.Unlock()

	if s.started != nil {
		s.started <- s.role
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panics {
		panic("evaluator bug")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.nilOut {
		return nil, nil
	}

	a := domain.NewEmptyAssessment(s.role)
	a.Analysis = fmt.Sprintf("%s reviewed %d items", s.role, len(in.Items))
	for _, it := range in.Items {
		a.EvaluatedMPNs = append(a.EvaluatedMPNs, it.MPN)
		a.Findings = append(a.Findings, domain.PartFinding{MPN: it.MPN, Summary: "ok"})
	}
	return a, nil
}

func (s *stubEvaluator) lastInput() EvaluationInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// --- Synthesizer ---

type stubSynth struct {
	decide func(in DecisionInput) (*domain.FinalDecisionReport, error)
	calls  atomic.Int32
}

func (s *stubSynth) Decide(_ context.Context, in DecisionInput) (*domain.FinalDecisionReport, error) {
	s.calls.Add(1)
	if s.decide != nil {
		return s.decide(in)
	}
	return approveAll(in), nil
}

// approveAll одобряет каждый MPN по цене 1.0 за штуку.
func approveAll(in DecisionInput) *domain.FinalDecisionReport {
	r := domain.NewReport()
	qty := make(map[string]int)
	for _, it := range in.Items {
		qty[it.MPN] += it.Quantity
	}
	for _, mpn := range domain.MPNs(in.Items) {
		r.Verdicts = append(r.Verdicts, domain.VerdictRecord{
			MPN:          mpn,
			Verdict:      domain.VerdictApproved,
			SupplierID:   "digikey",
			SupplierName: "DigiKey",
			Quantity:     qty[mpn],
			UnitPrice:    1.0,
			LineCost:     float64(qty[mpn]),
			Findings: map[domain.Role]string{
				domain.RoleEngineering: in.Engineering.Analysis,
			},
			Rationale: "all specialists agree",
		})
	}
	r.Finalize(in.Context.Requirements.BudgetTotal)
	return r
}
