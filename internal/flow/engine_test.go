package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
)

const testBOM = "Reference Designators,Quantity,MPN,Manufacturer\n" +
	"R1,10,RC0603,Yageo\n" +
	"U1,2,STM32F103,ST\n"

type harness struct {
	projects    *memProjects
	offers      *memOffers
	source      *stubSource
	engineering *stubEvaluator
	sourcing    *stubEvaluator
	finance     *stubEvaluator
	synth       *stubSynth
	intel       IntelProvider

	// store заменяет projects в Config, если задан.
	store    ProjectStore
	leaseTTL time.Duration

	mu      sync.Mutex
	steps   []domain.TraceStep
	onTrace TraceFunc
}

func newHarness() *harness {
	return &harness{
		projects:    newMemProjects(),
		offers:      newMemOffers(),
		source:      &stubSource{},
		engineering: &stubEvaluator{role: domain.RoleEngineering},
		sourcing:    &stubEvaluator{role: domain.RoleSourcing},
		finance:     &stubEvaluator{role: domain.RoleFinance},
		synth:       &stubSynth{},
	}
}

func (h *harness) engine(t *testing.T) *Engine {
	t.Helper()
	onTrace := h.onTrace
	if onTrace == nil {
		onTrace = func(_ context.Context, _ uuid.UUID, step domain.TraceStep) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.steps = append(h.steps, step)
			return nil
		}
	}
	var projects ProjectStore = h.projects
	if h.store != nil {
		projects = h.store
	}
	e, err := New(Config{
		Projects:    projects,
		Offers:      h.offers,
		OfferSource: h.source,
		Intel:       h.intel,
		Engineering: h.engineering,
		Sourcing:    h.sourcing,
		Finance:     h.finance,
		Synthesizer: h.synth,
		OnTrace:     onTrace,
		LeaseTTL:    h.leaseTTL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func run(t *testing.T, e *Engine, bom string) *domain.Project {
	t.Helper()
	p, err := e.Run(context.Background(), Source{Name: "test", BOM: strings.NewReader(bom)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p == nil {
		t.Fatal("Run returned nil project")
	}
	return p
}

func traceHas(p *domain.Project, substr string) bool {
	for _, s := range p.Trace {
		if strings.Contains(s.Message, substr) {
			return true
		}
	}
	return false
}

// --- New Tests ---

func TestNew_MissingDependency(t *testing.T) {
	h := newHarness()
	_, err := New(Config{
		Projects:    h.projects,
		Offers:      h.offers,
		OfferSource: h.source,
		Engineering: h.engineering,
		Sourcing:    h.sourcing,
		Finance:     h.finance,
	})
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}
}

func TestNew_RoleMismatch(t *testing.T) {
	h := newHarness()
	_, err := New(Config{
		Projects:    h.projects,
		Offers:      h.offers,
		OfferSource: h.source,
		Engineering: h.sourcing,
		Sourcing:    h.engineering,
		Finance:     h.finance,
		Synthesizer: h.synth,
	})
	if !errors.Is(err, ErrRoleMismatch) {
		t.Errorf("expected ErrRoleMismatch, got %v", err)
	}
}

// --- Run Tests ---

func TestRun_Complete(t *testing.T) {
	h := newHarness()
	e := h.engine(t)

	p := run(t, e, testBOM)

	if p.Status != domain.ProjectStatusComplete {
		t.Fatalf("expected complete, got %s (error %q)", p.Status, p.Error)
	}
	if p.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	for _, it := range p.LineItems {
		if it.Status != domain.LineItemPendingPurchase {
			t.Errorf("item %s: expected PENDING_PURCHASE, got %s", it.MPN, it.Status)
		}
		if it.Decision == nil || it.Decision.Verdict != domain.VerdictApproved {
			t.Errorf("item %s: decision not recorded", it.MPN)
		}
		if it.SelectedSupplierID != "digikey" {
			t.Errorf("item %s: selected supplier %q", it.MPN, it.SelectedSupplierID)
		}
	}
	if p.Report == nil || len(p.Report.Verdicts) != 2 {
		t.Fatalf("expected report with 2 verdicts, got %+v", p.Report)
	}
	if p.Report.Summary.TotalSpend != 12 {
		t.Errorf("expected spend 12, got %v", p.Report.Summary.TotalSpend)
	}

	stored, err := h.projects.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != domain.ProjectStatusComplete || len(stored.Trace) != len(p.Trace) {
		t.Errorf("stored project diverges: %s, %d steps vs %d", stored.Status, len(stored.Trace), len(p.Trace))
	}
}

func TestRun_TraceOrderingAndDelivery(t *testing.T) {
	h := newHarness()
	e := h.engine(t)

	p := run(t, e, testBOM)

	for i, s := range p.Trace {
		if s.Seq != i+1 {
			t.Fatalf("trace[%d].Seq = %d, want %d", i, s.Seq, i+1)
		}
	}

	h.mu.Lock()
	delivered := len(h.steps)
	h.mu.Unlock()
	if delivered != len(p.Trace) {
		t.Errorf("consumer received %d steps, trace has %d", delivered, len(p.Trace))
	}

	// Все три специалиста записаны до первой записи final_decision.
	specialists := map[string]int{}
	firstDecision := -1
	for i, s := range p.Trace {
		if s.Stage == domain.StageParallelReview && s.Actor != "" {
			specialists[s.Actor] = i
		}
		if s.Stage == domain.StageFinalDecision && s.Actor == "final_decision" && firstDecision < 0 {
			firstDecision = i
		}
	}
	if len(specialists) != 3 {
		t.Fatalf("expected 3 specialist entries, got %v", specialists)
	}
	for role, idx := range specialists {
		if idx > firstDecision {
			t.Errorf("%s entry at %d after final decision entry at %d", role, idx, firstDecision)
		}
	}

	// Каждый этап пишет запись на входе и выходе.
	for _, stage := range []domain.Stage{domain.StageIntake, domain.StageEnrich, domain.StageMarketIntel, domain.StageParallelReview, domain.StageFinalDecision} {
		if !traceHas(p, "Starting "+stageTitle(stage)) || !traceHas(p, "Completed "+stageTitle(stage)) {
			t.Errorf("missing entry/exit trace for %s", stage)
		}
	}
}

func TestRun_EmptyBOM(t *testing.T) {
	h := newHarness()
	e := h.engine(t)

	p := run(t, e, "Reference Designators,Quantity,MPN\n")

	if p.Status != domain.ProjectStatusComplete {
		t.Fatalf("expected complete, got %s (%s)", p.Status, p.Error)
	}
	if p.Report == nil {
		t.Fatal("expected report")
	}
	if len(p.Report.Verdicts) != 0 || p.Report.Summary.TotalSpend != 0 {
		t.Errorf("expected zero report, got %+v", p.Report.Summary)
	}
	if h.synth.calls.Load() != 1 {
		t.Errorf("synthesizer should still be called once, got %d", h.synth.calls.Load())
	}
}

func TestRun_EvaluatorFailure(t *testing.T) {
	h := newHarness()
	h.finance.err = errors.New("pricing backend down")
	e := h.engine(t)

	p := run(t, e, testBOM)

	if p.Status != domain.ProjectStatusFailed {
		t.Fatalf("expected failed, got %s", p.Status)
	}
	if p.FailedStage != domain.StageParallelReview {
		t.Errorf("expected failed stage parallel_review, got %s", p.FailedStage)
	}
	if p.Error == "" {
		t.Error("expected non-empty error")
	}
	for _, it := range p.LineItems {
		if it.Status == domain.LineItemPendingFinalDecision || it.Status == domain.LineItemPendingPurchase {
			t.Errorf("item %s reached %s despite failed review", it.MPN, it.Status)
		}
	}
	if h.synth.calls.Load() != 0 {
		t.Error("synthesizer must not run after a failed review")
	}
	for _, s := range p.Trace {
		if s.Stage == domain.StageFinalDecision || s.Stage == domain.StageComplete {
			t.Errorf("stage %s ran after failure: %q", s.Stage, s.Message)
		}
	}
}

func TestRun_EvaluatorPanicAndNilAssessment(t *testing.T) {
	tests := map[string]func(h *harness){
		"panic": func(h *harness) { h.engineering.panics = true },
		"nil":   func(h *harness) { h.sourcing.nilOut = true },
	}

	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			setup(h)
			p := run(t, h.engine(t), testBOM)

			if p.Status != domain.ProjectStatusFailed || p.FailedStage != domain.StageParallelReview {
				t.Errorf("expected failure at parallel_review, got %s/%s", p.Status, p.FailedStage)
			}
		})
	}
}

func TestRun_InvalidInput(t *testing.T) {
	h := newHarness()
	e := h.engine(t)

	p, err := e.Run(context.Background(), Source{BOM: strings.NewReader("")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if p != nil {
		t.Error("no project should be returned")
	}

	_, err = e.Run(context.Background(), Source{
		BOM:    strings.NewReader(testBOM),
		Intake: strings.NewReader("requirements: [broken"),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for intake, got %v", err)
	}

	if h.projects.count() != 0 {
		t.Errorf("no project should be created, store has %d", h.projects.count())
	}
}

func TestRun_MarketIntelFailureIsSoft(t *testing.T) {
	tests := map[string]*stubIntel{
		"error": {err: errors.New("scraper timeout")},
		"panic": {panics: true},
		"empty": {report: &domain.MarketIntelReport{}},
	}

	for name, intel := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.intel = intel
			p := run(t, h.engine(t), testBOM)

			if p.Status != domain.ProjectStatusComplete {
				t.Errorf("expected complete, got %s (%s)", p.Status, p.Error)
			}
			if in := h.sourcing.lastInput(); in.MarketIntel == nil || !in.MarketIntel.IsEmpty() {
				t.Errorf("sourcing should receive an empty report, got %+v", in.MarketIntel)
			}
		})
	}
}

func TestRun_MarketIntelOnlyForSourcing(t *testing.T) {
	h := newHarness()
	h.intel = &stubIntel{report: &domain.MarketIntelReport{
		SupplyChainRisks: []string{"r1", "r2", "r3", "r4", "r5", "r6"},
		ShortageAlerts:   []string{"RC0603 allocation"},
	}}
	p := run(t, h.engine(t), testBOM)

	if got := h.sourcing.lastInput().MarketIntel; got == nil || len(got.ShortageAlerts) != 1 {
		t.Errorf("sourcing should receive market intel, got %+v", got)
	}
	if h.engineering.lastInput().MarketIntel != nil || h.finance.lastInput().MarketIntel != nil {
		t.Error("only sourcing receives market intel")
	}

	var risks *domain.TraceStep
	for i := range p.Trace {
		if strings.Contains(p.Trace[i].Message, "supply chain risks") && p.Trace[i].Reasoning != "" {
			risks = &p.Trace[i]
		}
	}
	if risks == nil {
		t.Fatal("expected supply chain risk trace step")
	}
	if n := len(strings.Split(risks.Reasoning, "\n")); n != 5 {
		t.Errorf("expected first five risks in reasoning, got %d", n)
	}
}

func TestRun_EmptyMPNFailsAtEnrich(t *testing.T) {
	h := newHarness()
	bom := "Reference Designators,Quantity,MPN\nR1,1,\nR2,1,GOOD\n"
	p := run(t, h.engine(t), bom)

	if p.Status != domain.ProjectStatusComplete {
		t.Fatalf("expected complete, got %s (%s)", p.Status, p.Error)
	}
	if p.LineItems[0].Status != domain.LineItemFailed || p.LineItems[0].FailureReason == "" {
		t.Errorf("empty MPN item should fail with reason, got %s", p.LineItems[0].Status)
	}
	if p.LineItems[1].Status != domain.LineItemPendingPurchase {
		t.Errorf("good item should be approved, got %s", p.LineItems[1].Status)
	}
	if got := h.engineering.lastInput().Items; len(got) != 1 || got[0].MPN != "GOOD" {
		t.Errorf("evaluators should only see enriched items, got %+v", got)
	}
}

func TestRun_OfferSourceErrorIsPerItem(t *testing.T) {
	h := newHarness()
	h.source.errs = map[string]error{"STM32F103": errors.New("distributor API 503")}
	p := run(t, h.engine(t), testBOM)

	if p.Status != domain.ProjectStatusComplete {
		t.Fatalf("expected complete, got %s (%s)", p.Status, p.Error)
	}
	if p.LineItems[1].Status != domain.LineItemFailed {
		t.Errorf("expected STM32F103 FAILED, got %s", p.LineItems[1].Status)
	}
	if !strings.Contains(p.LineItems[1].FailureReason, "503") {
		t.Errorf("failure reason should carry source error, got %q", p.LineItems[1].FailureReason)
	}
	if len(p.Report.Verdicts) != 1 {
		t.Errorf("expected 1 verdict, got %d", len(p.Report.Verdicts))
	}
}

func TestRun_OfferStoreFailureFailsRun(t *testing.T) {
	h := newHarness()
	h.offers.err = errors.New("redis gone")
	p := run(t, h.engine(t), testBOM)

	if p.Status != domain.ProjectStatusFailed || p.FailedStage != domain.StageEnrich {
		t.Errorf("expected failure at enrich, got %s/%s", p.Status, p.FailedStage)
	}
}

func TestRun_SynthesizerContractViolations(t *testing.T) {
	tests := map[string]func(in DecisionInput) (*domain.FinalDecisionReport, error){
		"missing verdict": func(in DecisionInput) (*domain.FinalDecisionReport, error) {
			r := approveAll(in)
			r.Verdicts = r.Verdicts[:1]
			r.Finalize(0)
			return r, nil
		},
		"unknown mpn": func(in DecisionInput) (*domain.FinalDecisionReport, error) {
			r := approveAll(in)
			r.Verdicts = append(r.Verdicts, domain.VerdictRecord{MPN: "GHOST", Verdict: domain.VerdictRejected})
			r.Finalize(0)
			return r, nil
		},
		"bad totals": func(in DecisionInput) (*domain.FinalDecisionReport, error) {
			r := approveAll(in)
			r.Summary.TotalSpend += 100
			return r, nil
		},
		"error": func(DecisionInput) (*domain.FinalDecisionReport, error) {
			return nil, errors.New("model refused")
		},
		"nil report": func(DecisionInput) (*domain.FinalDecisionReport, error) {
			return nil, nil
		},
	}

	for name, decide := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.synth.decide = decide
			p := run(t, h.engine(t), testBOM)

			if p.Status != domain.ProjectStatusFailed || p.FailedStage != domain.StageFinalDecision {
				t.Fatalf("expected failure at final_decision, got %s/%s", p.Status, p.FailedStage)
			}
			if p.Report != nil {
				t.Error("report must not be stored on contract violation")
			}
			for _, it := range p.LineItems {
				if it.Status != domain.LineItemPendingFinalDecision {
					t.Errorf("item %s: expected PENDING_FINAL_DECISION, got %s", it.MPN, it.Status)
				}
			}
		})
	}
}

func TestRun_RejectedVerdict(t *testing.T) {
	h := newHarness()
	h.synth.decide = func(in DecisionInput) (*domain.FinalDecisionReport, error) {
		r := approveAll(in)
		r.Verdicts[0] = domain.VerdictRecord{MPN: r.Verdicts[0].MPN, Verdict: domain.VerdictRejected, Rationale: "banned part"}
		r.Finalize(0)
		return r, nil
	}
	p := run(t, h.engine(t), testBOM)

	if p.LineItems[0].Status != domain.LineItemFailed || p.LineItems[0].FailureReason != "banned part" {
		t.Errorf("rejected item: %s / %q", p.LineItems[0].Status, p.LineItems[0].FailureReason)
	}
	if p.LineItems[1].Status != domain.LineItemPendingPurchase {
		t.Errorf("approved item: %s", p.LineItems[1].Status)
	}
}

func TestRun_DuplicateMPNRowsShareVerdict(t *testing.T) {
	h := newHarness()
	bom := "Reference Designators,Quantity,MPN\nR1,5,A\nR2,7,A\n"
	p := run(t, h.engine(t), bom)

	if len(p.Report.Verdicts) != 1 {
		t.Fatalf("expected 1 verdict, got %d", len(p.Report.Verdicts))
	}
	for _, it := range p.LineItems {
		if it.Status != domain.LineItemPendingPurchase {
			t.Errorf("row %v: expected PENDING_PURCHASE, got %s", it.RefDes, it.Status)
		}
	}
	if h.source.calls.Load() != 1 {
		t.Errorf("offers should be fetched once per MPN, got %d", h.source.calls.Load())
	}
}

func TestRun_ForwardOnlyTransitions(t *testing.T) {
	h := newHarness()
	var violations []string
	h.projects.onUpdate = func(prev, next *domain.Project) {
		if prev == nil {
			return
		}
		for i := range next.LineItems {
			from, to := prev.LineItems[i].Status, next.LineItems[i].Status
			if !from.CanTransition(to) {
				violations = append(violations, string(from)+"->"+string(to))
			}
		}
	}
	h.synth.decide = func(in DecisionInput) (*domain.FinalDecisionReport, error) {
		r := approveAll(in)
		r.Verdicts[1].Verdict = domain.VerdictRejected
		r.Verdicts[1].LineCost = 0
		r.Finalize(0)
		return r, nil
	}

	p := run(t, h.engine(t), testBOM+"C1,1,\n")

	if p.Status != domain.ProjectStatusComplete {
		t.Fatalf("expected complete, got %s (%s)", p.Status, p.Error)
	}
	if len(violations) > 0 {
		t.Errorf("backward transitions observed: %v", violations)
	}
}

func TestRun_TraceConsumerFailuresDoNotAbort(t *testing.T) {
	for name, fn := range map[string]TraceFunc{
		"error": func(context.Context, uuid.UUID, domain.TraceStep) error { return errors.New("socket closed") },
		"panic": func(context.Context, uuid.UUID, domain.TraceStep) error { panic("renderer bug") },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.onTrace = fn
			p := run(t, h.engine(t), testBOM)
			if p.Status != domain.ProjectStatusComplete {
				t.Errorf("expected complete, got %s", p.Status)
			}
		})
	}
}

func TestRun_PersistFailure(t *testing.T) {
	h := newHarness()
	h.projects.failOn = 4
	e := h.engine(t)

	p, err := e.Run(context.Background(), Source{BOM: strings.NewReader(testBOM)})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if p == nil || p.Status != domain.ProjectStatusFailed {
		t.Errorf("expected failed working copy, got %+v", p)
	}
	if e.ActiveCount() != 0 {
		t.Error("project should be released after run")
	}
}

func TestRun_EvaluatorsRunConcurrently(t *testing.T) {
	h := newHarness()
	started := make(chan domain.Role, 3)
	release := make(chan struct{})
	for _, ev := range []*stubEvaluator{h.engineering, h.sourcing, h.finance} {
		ev.started = started
		ev.release = release
	}
	e := h.engine(t)

	done := make(chan *domain.Project, 1)
	go func() {
		p, _ := e.Run(context.Background(), Source{BOM: strings.NewReader(testBOM)})
		done <- p
	}()

	seen := map[domain.Role]bool{}
	timeout := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case r := <-started:
			seen[r] = true
		case <-timeout:
			t.Fatalf("evaluators not running concurrently, started: %v", seen)
		}
	}
	close(release)

	p := <-done
	if p.Status != domain.ProjectStatusComplete {
		t.Errorf("expected complete, got %s", p.Status)
	}
}

// --- Enrich Tests ---

func TestEnrich_Idempotent(t *testing.T) {
	h := newHarness()
	e := h.engine(t)
	ctx := context.Background()

	p := h.projects.seed(t, "enrich",
		domain.NewLineItem([]string{"R1"}, "A", 10),
		domain.NewLineItem([]string{"R2"}, "B", 1),
	)
	st := e.newRunState(p)

	if err := e.enrich(ctx, st); err != nil {
		t.Fatalf("first enrich: %v", err)
	}
	first := snapshotOffers(t, h.offers, p.ID, "A", "B")

	if err := e.enrich(ctx, st); err != nil {
		t.Fatalf("second enrich: %v", err)
	}
	second := snapshotOffers(t, h.offers, p.ID, "A", "B")

	for mpn, offers := range first {
		if len(second[mpn]) != len(offers) {
			t.Errorf("%s: %d offers after second enrich, %d after first", mpn, len(second[mpn]), len(offers))
		}
		if len(second[mpn][0].PriceBreaks) != len(offers[0].PriceBreaks) {
			t.Errorf("%s: price breaks duplicated", mpn)
		}
	}
	for _, it := range st.project.LineItems {
		if it.Status != domain.LineItemEnriched {
			t.Errorf("%s: expected ENRICHED, got %s", it.MPN, it.Status)
		}
	}
}

func TestEnrich_DoesNotRegressItems(t *testing.T) {
	h := newHarness()
	e := h.engine(t)
	ctx := context.Background()

	item := domain.NewLineItem(nil, "A", 1)
	item.Status = domain.LineItemPendingFinalDecision
	p := h.projects.seed(t, "enrich", item)
	st := e.newRunState(p)

	if err := e.enrich(ctx, st); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if got := st.project.LineItems[0].Status; got != domain.LineItemPendingFinalDecision {
		t.Errorf("item regressed to %s", got)
	}
	if h.source.calls.Load() != 0 {
		t.Error("items past ENRICHED should not be re-fetched")
	}
}

func snapshotOffers(t *testing.T, store *memOffers, id uuid.UUID, mpns ...string) map[string][]domain.Offer {
	t.Helper()
	out := make(map[string][]domain.Offer)
	for _, mpn := range mpns {
		offers, ok, err := store.GetOffers(context.Background(), id, mpn)
		if err != nil || !ok {
			t.Fatalf("GetOffers(%s): ok=%v err=%v", mpn, ok, err)
		}
		out[mpn] = offers
	}
	return out
}

// --- Resume Tests ---

func TestResume_ContinuesFromStoredStage(t *testing.T) {
	h := newHarness()
	e := h.engine(t)
	ctx := context.Background()

	p := h.projects.seed(t, "crashed", domain.NewLineItem(nil, "A", 1))
	p.MarkStage(domain.StageEnrich)
	if err := h.projects.Update(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := e.Resume(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got.Status != domain.ProjectStatusComplete {
		t.Errorf("expected complete, got %s (%s)", got.Status, got.Error)
	}
	if traceHas(got, "Starting intake") {
		t.Error("intake should not run again on resume")
	}
}

func TestResume_Terminal(t *testing.T) {
	h := newHarness()
	e := h.engine(t)
	p := run(t, e, testBOM)

	_, err := e.Resume(context.Background(), p.ID)
	if !errors.Is(err, ErrProjectTerminal) {
		t.Errorf("expected ErrProjectTerminal, got %v", err)
	}
}

func TestResume_ProjectBusy(t *testing.T) {
	h := newHarness()
	started := make(chan domain.Role, 3)
	release := make(chan struct{})
	h.engineering.started = started
	h.engineering.release = release
	e := h.engine(t)
	ctx := context.Background()

	p := h.projects.seed(t, "busy", domain.NewLineItem(nil, "A", 1))
	p.MarkStage(domain.StageEnrich)
	_ = h.projects.Update(ctx, p)

	done := make(chan error, 1)
	go func() {
		_, err := e.Resume(ctx, p.ID)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first resume never reached review")
	}

	if _, err := e.Resume(ctx, p.ID); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("expected ErrProjectBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first resume: %v", err)
	}
	if e.ActiveCount() != 0 {
		t.Errorf("expected no active projects, got %d", e.ActiveCount())
	}
}

func TestResume_ProjectLeasedByAnotherEngine(t *testing.T) {
	shared := newLeasingProjects()
	var shrunk atomic.Bool
	shared.onUpdate = func(prev, next *domain.Project) {
		if prev != nil && len(next.Trace) < len(prev.Trace) {
			shrunk.Store(true)
		}
	}

	h := newHarness()
	h.projects = shared.memProjects
	h.store = shared
	started := make(chan domain.Role, 3)
	release := make(chan struct{})
	h.engineering.started = started
	h.engineering.release = release
	first := h.engine(t)
	second := h.engine(t)
	ctx := context.Background()

	p := shared.seed(t, "leased", domain.NewLineItem(nil, "A", 1))
	p.MarkStage(domain.StageEnrich)
	_ = shared.Update(ctx, p)

	done := make(chan error, 1)
	go func() {
		_, err := first.Resume(ctx, p.ID)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first resume never reached review")
	}

	if _, err := second.Resume(ctx, p.ID); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("expected ErrProjectBusy from second engine, got %v", err)
	}
	if second.ActiveCount() != 0 {
		t.Errorf("rejected resume left %d active projects", second.ActiveCount())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first resume: %v", err)
	}
	if shrunk.Load() {
		t.Error("persisted trace shrank")
	}
	if shared.held(p.ID) {
		t.Error("lease not released after run")
	}

	got, _ := shared.Get(ctx, p.ID)
	if got.Status != domain.ProjectStatusComplete {
		t.Errorf("expected complete, got %s (%s)", got.Status, got.Error)
	}
}

func TestRun_RenewsLeaseWhileRunning(t *testing.T) {
	shared := newLeasingProjects()
	h := newHarness()
	h.projects = shared.memProjects
	h.store = shared
	h.leaseTTL = 30 * time.Millisecond
	started := make(chan domain.Role, 3)
	release := make(chan struct{})
	h.finance.started = started
	h.finance.release = release
	e := h.engine(t)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), Source{Name: "slow", BOM: strings.NewReader(testBOM)})
		done <- err
	}()
	<-started

	deadline := time.After(5 * time.Second)
	for {
		shared.leaseMu.Lock()
		claims := shared.claims
		shared.leaseMu.Unlock()
		if claims >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("lease renewed %d times, want at least 2", claims-1)
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_RedeliveredSubmission(t *testing.T) {
	h := newHarness()
	h.projects.failOn = 4
	e := h.engine(t)
	ctx := context.Background()
	id := uuid.New()

	submit := func() (*domain.Project, error) {
		return e.Run(ctx, Source{ID: id, Name: "redelivered", BOM: strings.NewReader(testBOM)})
	}

	p, err := submit()
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist on first delivery, got %v", err)
	}
	if p.ID != id {
		t.Fatalf("project id %s, want submission id %s", p.ID, id)
	}

	h.projects.mu.Lock()
	h.projects.failOn = 0
	h.projects.mu.Unlock()

	p, err = submit()
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if p.ID != id || p.Status != domain.ProjectStatusComplete {
		t.Fatalf("expected %s complete, got %s %s (%s)", id, p.ID, p.Status, p.Error)
	}
	for i, step := range p.Trace {
		if step.Seq != i+1 {
			t.Fatalf("trace step %d has seq %d", i, step.Seq)
		}
	}
	if n := h.projects.count(); n != 1 {
		t.Errorf("expected exactly one project, got %d", n)
	}

	calls := h.synth.calls.Load()
	p, err = submit()
	if err != nil || p.Status != domain.ProjectStatusComplete {
		t.Fatalf("third delivery: %v / %v", p, err)
	}
	if h.synth.calls.Load() != calls {
		t.Error("completed submission ran again")
	}
}

func TestTee(t *testing.T) {
	var calls []string
	fn := Tee(
		func(context.Context, uuid.UUID, domain.TraceStep) error { calls = append(calls, "a"); return errors.New("a") },
		nil,
		func(context.Context, uuid.UUID, domain.TraceStep) error { calls = append(calls, "b"); return nil },
	)
	err := fn(context.Background(), uuid.New(), domain.TraceStep{})
	if err == nil || len(calls) != 2 {
		t.Errorf("expected both consumers called and first error returned, got %v / %v", calls, err)
	}
	if Tee(nil, nil) != nil {
		t.Error("Tee of nils should be nil")
	}
}
