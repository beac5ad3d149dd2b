package specialist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/narrate"
)

// --- fakes ---

type fakeKnowledge struct {
	banned     map[string]string
	alternates map[string][]string
	history    map[string]*domain.PartKnowledge
	suppliers  map[string]*domain.Supplier
	err        error
}

func (k *fakeKnowledge) IsPartBanned(_ context.Context, mpn string) (bool, string, error) {
	if k.err != nil {
		return false, "", k.err
	}
	reason, ok := k.banned[mpn]
	return ok, reason, nil
}

func (k *fakeKnowledge) ApprovedAlternates(_ context.Context, mpn string) ([]string, error) {
	return k.alternates[mpn], k.err
}

func (k *fakeKnowledge) PartKnowledge(_ context.Context, mpn string) (*domain.PartKnowledge, error) {
	return k.history[mpn], k.err
}

func (k *fakeKnowledge) Supplier(_ context.Context, id string) (*domain.Supplier, error) {
	return k.suppliers[id], k.err
}

type fakeOffers map[string][]domain.Offer

func (f fakeOffers) GetOffers(_ context.Context, mpn string) ([]domain.Offer, bool, error) {
	o, ok := f[mpn]
	return o, ok, nil
}

func offer(mpn, supplier string, price float64) domain.Offer {
	return domain.Offer{
		MPN:           mpn,
		SupplierID:    strings.ToLower(supplier),
		SupplierName:  supplier,
		PriceBreaks:   []domain.PriceBreak{{MinQty: 1, UnitPrice: price}},
		MOQ:           1,
		Stock:         10000,
		LeadTimeDays:  5,
		Authorized:    true,
		Lifecycle:     domain.LifecycleActive,
		RoHSCompliant: true,
	}
}

func input(offers fakeOffers, items ...domain.LineItem) flow.EvaluationInput {
	return flow.EvaluationInput{
		Items:   items,
		Context: domain.DefaultProjectContext(),
		Offers:  offers,
	}
}

func item(mpn string, qty int) domain.LineItem {
	it := domain.NewLineItem([]string{"U1"}, mpn, qty)
	it.Status = domain.LineItemEnriched
	return it
}

func concernMessages(a *domain.Assessment) []string {
	return a.ConcernStrings()
}

// --- empty batch ---

func TestEvaluators_EmptyBatch(t *testing.T) {
	k := &fakeKnowledge{}
	for _, e := range []flow.Evaluator{NewEngineering(k, nil), NewSourcing(k, nil), NewFinance(nil)} {
		a, err := e.Evaluate(context.Background(), flow.EvaluationInput{Context: domain.DefaultProjectContext()})
		require.NoError(t, err)
		assert.Equal(t, e.Role(), a.Role)
		assert.Empty(t, a.Concerns)
		assert.Empty(t, a.EvaluatedMPNs)
		assert.Equal(t, "No line items to evaluate.", a.Analysis)
	}
}

// --- engineering ---

func TestEngineering_BannedPartReason(t *testing.T) {
	k := &fakeKnowledge{banned: map[string]string{"LM317": "counterfeit risk in 2023 batches"}}
	offers := fakeOffers{"LM317": {offer("LM317", "DigiKey", 0.5)}}

	a, err := NewEngineering(k, nil).Evaluate(context.Background(), input(offers, item("LM317", 10)))
	require.NoError(t, err)

	assert.Contains(t, concernMessages(a), "LM317: BANNED - counterfeit risk in 2023 batches")
	assert.True(t, a.Blocks("LM317"))
	f, ok := a.Finding("LM317")
	require.True(t, ok)
	assert.Contains(t, f.Summary, "counterfeit risk in 2023 batches")
}

func TestEngineering_LifecycleAndCompliance(t *testing.T) {
	obsolete := offer("OLD1", "DigiKey", 1)
	obsolete.Lifecycle = domain.LifecycleObsolete
	nrnd := offer("NR1", "DigiKey", 1)
	nrnd.Lifecycle = domain.LifecycleNRND
	leaded := offer("PB1", "DigiKey", 1)
	leaded.RoHSCompliant = false

	offers := fakeOffers{
		"OLD1": {obsolete},
		"NR1":  {nrnd},
		"PB1":  {leaded},
	}
	in := input(offers, item("OLD1", 1), item("NR1", 1), item("PB1", 1))
	in.Context.Compliance.Standards = []string{"rohs"}

	a, err := NewEngineering(&fakeKnowledge{}, nil).Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, a.Blocks("OLD1"))
	assert.False(t, a.Blocks("NR1"))
	assert.True(t, a.Blocks("PB1"))
	require.Len(t, a.ConcernsFor("NR1"), 1)
	assert.Equal(t, domain.SeverityWarning, a.ConcernsFor("NR1")[0].Severity)
}

func TestEngineering_HistoryCriticalAlternates(t *testing.T) {
	k := &fakeKnowledge{
		alternates: map[string][]string{"C100": {"C100-ALT"}},
		history:    map[string]*domain.PartKnowledge{"C100": {MPN: "C100", TimesUsed: 12, FailureCount: 2}},
	}
	in := input(fakeOffers{"C100": {offer("C100", "Mouser", 0.1)}}, item("C100", 5))
	in.Context.EngineeringContext.CriticalParts = []string{"c100"}

	a, err := NewEngineering(k, nil).Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, a.Blocks("C100"))
	assert.Contains(t, concernMessages(a), "C100: 2 recorded failures across 12 uses")
	assert.Contains(t, concernMessages(a), "C100: Critical part - requires engineering sign-off")
	assert.Equal(t, []string{"C100: approved alternates C100-ALT"}, a.Recommendations)
}

func TestEngineering_KnowledgeErrorFails(t *testing.T) {
	k := &fakeKnowledge{err: errors.New("database is locked")}
	_, err := NewEngineering(k, nil).Evaluate(context.Background(), input(fakeOffers{}, item("X", 1)))
	require.ErrorIs(t, err, ErrKnowledge)
}

func TestEngineering_NarratorUsedForAnalysis(t *testing.T) {
	var prompt narrate.Prompt
	n := narrate.Func(func(_ context.Context, p narrate.Prompt) (string, error) {
		prompt = p
		return "All parts look fine.", nil
	})
	a, err := NewEngineering(&fakeKnowledge{}, n).Evaluate(context.Background(),
		input(fakeOffers{"R1": {offer("R1", "DigiKey", 0.01)}}, item("R1", 1)))
	require.NoError(t, err)
	assert.Equal(t, "All parts look fine.", a.Analysis)
	assert.Contains(t, prompt.User, "R1")
	assert.NotEmpty(t, prompt.System)

	failing := narrate.Func(func(context.Context, narrate.Prompt) (string, error) {
		return "", errors.New("quota exceeded")
	})
	_, err = NewEngineering(&fakeKnowledge{}, failing).Evaluate(context.Background(),
		input(fakeOffers{}, item("R1", 1)))
	require.ErrorIs(t, err, ErrNarrator)
}

// --- sourcing ---

func TestSourcing_RankingAndExclusions(t *testing.T) {
	broker := offer("U7", "ChipBroker", 0.10)
	broker.Broker = true
	broker.Authorized = false
	slow := offer("U7", "Arrow", 0.20)
	slow.LeadTimeDays = 90
	blocked := offer("U7", "Shady", 0.15)
	cheapLowTrust := offer("U7", "LCSC", 0.30)
	mouser := offer("U7", "Mouser", 0.60)
	digikey := offer("U7", "DigiKey", 0.50)

	k := &fakeKnowledge{suppliers: map[string]*domain.Supplier{
		"shady":   {ID: "shady", TrustLevel: domain.TrustBlocked},
		"lcsc":    {ID: "lcsc", TrustLevel: domain.TrustLow},
		"mouser":  {ID: "mouser", TrustLevel: domain.TrustHigh},
		"digikey": {ID: "digikey", TrustLevel: domain.TrustHigh},
	}}
	in := input(fakeOffers{"U7": {broker, slow, blocked, cheapLowTrust, mouser, digikey}}, item("U7", 10))

	a, err := NewSourcing(k, nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	f, ok := a.Finding("U7")
	require.True(t, ok)
	assert.Equal(t, "digikey", f.SupplierID, "high trust wins, then price")
	assert.Equal(t, 10, f.OrderQty)
	assert.InDelta(t, 5.0, f.LineCost, 1e-9)

	in.Context.SourcingConstraints.PreferredDistributors = []string{"Mouser"}
	a, err = NewSourcing(k, nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	f, _ = a.Finding("U7")
	assert.Equal(t, "mouser", f.SupplierID, "preferred distributor wins")
}

func TestSourcing_NoOffersBlocks(t *testing.T) {
	a, err := NewSourcing(&fakeKnowledge{}, nil).Evaluate(context.Background(), input(fakeOffers{}, item("GHOST", 1)))
	require.NoError(t, err)
	assert.True(t, a.Blocks("GHOST"))
	assert.Contains(t, concernMessages(a), "GHOST: No offers available")

	broker := offer("B1", "ChipBroker", 0.1)
	broker.Broker = true
	a, err = NewSourcing(&fakeKnowledge{}, nil).Evaluate(context.Background(), input(fakeOffers{"B1": {broker}}, item("B1", 1)))
	require.NoError(t, err)
	assert.True(t, a.Blocks("B1"))
	assert.Contains(t, a.ConcernsFor("B1")[0].Message, "ChipBroker: broker")
}

func TestSourcing_WarningsAndAlternates(t *testing.T) {
	low := offer("P1", "DigiKey", 1)
	low.Stock = 3
	k := &fakeKnowledge{alternates: map[string][]string{"P2": {"P2-ALT"}}}
	slow := offer("P2", "Arrow", 1)
	slow.LeadTimeDays = 60

	in := input(fakeOffers{
		"P1":     {low},
		"P2":     {slow},
		"P2-ALT": {offer("P2-ALT", "Mouser", 2)},
	}, item("P1", 10), item("P2", 1))
	in.MarketIntel = &domain.MarketIntelReport{ShortageAlerts: []string{"P1 allocation expected through Q3"}}

	a, err := NewSourcing(k, nil).Evaluate(context.Background(), in)
	require.NoError(t, err)

	msgs := concernMessages(a)
	assert.Contains(t, msgs, "P1: Insufficient stock at DigiKey: 3 available, 10 required")
	assert.Contains(t, msgs, "P1: Single source: only DigiKey can supply")
	assert.Contains(t, msgs, "P1: Market alert: P1 allocation expected through Q3")

	f, ok := a.Finding("P2")
	require.True(t, ok)
	assert.False(t, a.Blocks("P2"))
	assert.Equal(t, "P2-ALT", f.SelectedMPN)
	assert.Equal(t, "mouser", f.SupplierID)
}

// --- finance ---

func TestFinance_BudgetExceeded(t *testing.T) {
	in := input(fakeOffers{
		"A": {offer("A", "DigiKey", 3)},
		"B": {offer("B", "DigiKey", 4)},
	}, item("A", 10), item("B", 10))
	in.Context.Requirements.BudgetTotal = 50

	a, err := NewFinance(nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, concernMessages(a), "Estimated spend ($70.00) exceeds budget ($50.00)")
	assert.NotEmpty(t, a.Recommendations)
}

func TestFinance_BudgetThresholds(t *testing.T) {
	in := input(fakeOffers{"A": {offer("A", "DigiKey", 1)}}, item("A", 95))

	in.Context.Requirements.BudgetTotal = 100
	a, err := NewFinance(nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, concernMessages(a), "Estimated spend ($95.00) is over 90% of budget")

	in.Context.Requirements.BudgetTotal = 0
	a, err = NewFinance(nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, a.Concerns, 2)
	assert.Equal(t, domain.SeverityWarning, a.Concerns[0].Severity)
	assert.Equal(t, "Estimated spend ($95.00) exceeds budget ($0.00)", a.Concerns[0].Message)
	assert.Equal(t, domain.SeverityInfo, a.Concerns[1].Severity)
	assert.Equal(t, "No budget specified", a.Concerns[1].Message)
	assert.NotEmpty(t, a.Recommendations)
}

func TestFinance_ZeroSpendWithoutBudget(t *testing.T) {
	in := input(fakeOffers{}, item("NOPRICE", 1))

	a, err := NewFinance(nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	for _, msg := range concernMessages(a) {
		assert.NotContains(t, msg, "exceeds budget")
	}
	assert.Contains(t, concernMessages(a), "No budget specified")
}

func TestFinance_MOQAndMissingPricing(t *testing.T) {
	bulk := offer("R", "LCSC", 0.01)
	bulk.MOQ = 100
	bulk.PriceBreaks = []domain.PriceBreak{{MinQty: 1, UnitPrice: 0.05}, {MinQty: 100, UnitPrice: 0.01}}

	in := input(fakeOffers{"R": {bulk}}, item("R", 10), item("NOPRICE", 1))
	in.Context.Requirements.BudgetTotal = 1000

	a, err := NewFinance(nil).Evaluate(context.Background(), in)
	require.NoError(t, err)

	f, ok := a.Finding("R")
	require.True(t, ok)
	assert.Equal(t, 100, f.OrderQty)
	assert.InDelta(t, 1.0, f.LineCost, 1e-9)
	assert.Contains(t, concernMessages(a), "NOPRICE: No pricing data available")
}

func TestFinance_DuplicateRowsAggregate(t *testing.T) {
	in := input(fakeOffers{"A": {offer("A", "DigiKey", 2)}}, item("A", 3), item("A", 4))
	a, err := NewFinance(nil).Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, a.EvaluatedMPNs)
	f, _ := a.Finding("A")
	assert.Equal(t, 7, f.OrderQty)
}

// --- registry ---

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(&fakeKnowledge{}, nil)
	assert.Equal(t, []domain.Role{domain.RoleEngineering, domain.RoleFinance, domain.RoleSourcing}, r.Roles())

	var cfg flow.Config
	require.NoError(t, r.Apply(&cfg))
	assert.Equal(t, domain.RoleEngineering, cfg.Engineering.Role())
	assert.Equal(t, domain.RoleSourcing, cfg.Sourcing.Role())
	assert.Equal(t, domain.RoleFinance, cfg.Finance.Role())

	empty := NewRegistry()
	_, err := empty.Get(domain.RoleFinance)
	require.ErrorIs(t, err, ErrRoleNotFound)
	require.ErrorIs(t, empty.Apply(&cfg), ErrRoleNotFound)
}
