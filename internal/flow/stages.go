package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/bomflow/internal/domain"
)

// intake фиксирует создание проекта. Разбор документов выполнен до создания проекта.
func (e *Engine) intake(ctx context.Context, st *runState) error {
	p := st.project
	return e.trace(ctx, st, domain.TraceStep{
		Stage:   domain.StageIntake,
		Message: fmt.Sprintf("Created project %s with %d line items", p.ID, len(p.LineItems)),
	})
}

// enrich получает предложения для каждой позиции и заменяет их в OfferStore.
//
// Идемпотентен по MPN: повторный запуск перезаписывает предложения.
// Позиции дальше ENRICHED не откатываются. Позиция без MPN или с ошибкой
// источника переходит в FAILED, прогон продолжается.
func (e *Engine) enrich(ctx context.Context, st *runState) error {
	p := st.project

	// MPN → ошибка источника; одно обращение к источнику на MPN.
	fetched := make(map[string]error)
	enriched := 0
	var failures []string

	for i := range p.LineItems {
		item := &p.LineItems[i]
		if item.Status != domain.LineItemPending && item.Status != domain.LineItemEnriched {
			continue
		}

		if item.MPN == "" {
			reason := "missing MPN: part cannot be resolved"
			if err := item.Fail(reason); err != nil {
				return err
			}
			failures = append(failures, fmt.Sprintf("%s: %s", refLabel(item), reason))
			continue
		}

		fetchErr, done := fetched[item.MPN]
		if !done {
			fetchErr = e.fetchOffers(ctx, p, *item)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			fetched[item.MPN] = fetchErr
		}
		if fetchErr != nil {
			var storeErr *offerStoreError
			if errors.As(fetchErr, &storeErr) {
				return fetchErr
			}
			reason := "offer lookup failed: " + fetchErr.Error()
			if err := item.Fail(reason); err != nil {
				return err
			}
			failures = append(failures, fmt.Sprintf("%s: %s", item.MPN, reason))
			continue
		}

		if err := item.Transition(domain.LineItemEnriched); err != nil {
			return err
		}
		enriched++
	}

	return e.trace(ctx, st, domain.TraceStep{
		Stage:      domain.StageEnrich,
		Message:    fmt.Sprintf("Enriched %d/%d items with supplier data", enriched, len(p.LineItems)),
		Reasoning:  strings.Join(failures, "\n"),
		References: domain.MPNs(p.LineItems),
	})
}

// offerStoreError — отказ OfferStore, в отличие от отказа источника, роняет этап.
type offerStoreError struct{ err error }

func (e *offerStoreError) Error() string { return "offer store: " + e.err.Error() }
func (e *offerStoreError) Unwrap() error { return e.err }

func (e *Engine) fetchOffers(ctx context.Context, p *domain.Project, item domain.LineItem) error {
	offers, err := e.offerSource.Offers(ctx, item)
	if err != nil {
		return err
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	if err := e.offers.SetOffers(ctx, p.ID, item.MPN, offers); err != nil {
		return &offerStoreError{err: err}
	}
	return nil
}

// marketIntel собирает рыночную аналитику. Никогда не переводит проект в failed.
func (e *Engine) marketIntel(ctx context.Context, st *runState) error {
	st.intel = &domain.MarketIntelReport{}

	if e.intel == nil {
		return e.trace(ctx, st, domain.TraceStep{
			Stage:   domain.StageMarketIntel,
			Message: "Market intelligence provider not configured - skipping",
		})
	}

	items := activeItems(st.project)
	report, err := e.gatherIntel(ctx, items, st.project.Context)
	if err != nil {
		st.logger.Warn("market intelligence unavailable", "error", err)
		return e.trace(ctx, st, domain.TraceStep{
			Stage:     domain.StageMarketIntel,
			Message:   "Market intelligence unavailable - continuing without it",
			Reasoning: err.Error(),
		})
	}
	if report.IsEmpty() {
		return e.trace(ctx, st, domain.TraceStep{
			Stage:   domain.StageMarketIntel,
			Message: "No market intelligence found for submitted parts",
		})
	}
	st.intel = report

	if err := e.trace(ctx, st, domain.TraceStep{
		Stage: domain.StageMarketIntel,
		Message: fmt.Sprintf("Gathered %d intel items: %d supply chain risks, %d shortage alerts",
			len(report.Items), len(report.SupplyChainRisks), len(report.ShortageAlerts)),
	}); err != nil {
		return err
	}

	if len(report.SupplyChainRisks) > 0 {
		if err := e.trace(ctx, st, domain.TraceStep{
			Stage:     domain.StageMarketIntel,
			Message:   fmt.Sprintf("Identified %d supply chain risks", len(report.SupplyChainRisks)),
			Reasoning: strings.Join(firstN(report.SupplyChainRisks, 5), "\n"),
		}); err != nil {
			return err
		}
	}
	if len(report.ShortageAlerts) > 0 {
		if err := e.trace(ctx, st, domain.TraceStep{
			Stage:     domain.StageMarketIntel,
			Message:   fmt.Sprintf("Found %d shortage alerts", len(report.ShortageAlerts)),
			Reasoning: strings.Join(firstN(report.ShortageAlerts, 5), "\n"),
		}); err != nil {
			return err
		}
	}
	return nil
}

// gatherIntel вызывает провайдера, превращая панику в ошибку.
func (e *Engine) gatherIntel(ctx context.Context, items []domain.LineItem, pctx domain.ProjectContext) (report *domain.MarketIntelReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("market intelligence provider panicked: %v", r)
		}
	}()
	return e.intel.Gather(ctx, items, pctx)
}

// parallelReview запускает трёх специалистов параллельно над одним батчем.
//
// Барьер на трёх задачах: позиции переходят в PENDING_FINAL_DECISION только
// когда все три оценки получены. Ошибка любого специалиста роняет прогон,
// остальным отменяется контекст.
func (e *Engine) parallelReview(ctx context.Context, st *runState) error {
	p := st.project

	var batch []int
	for i, it := range p.LineItems {
		if it.Status == domain.LineItemEnriched || it.Status == domain.LineItemPendingFinalDecision {
			batch = append(batch, i)
		}
	}
	items := make([]domain.LineItem, len(batch))
	for j, i := range batch {
		items[j] = cloneItem(p.LineItems[i])
	}

	if err := e.trace(ctx, st, domain.TraceStep{
		Stage:      domain.StageParallelReview,
		Message:    fmt.Sprintf("Dispatching %d items to engineering, sourcing and finance reviews", len(items)),
		References: domain.MPNs(items),
	}); err != nil {
		return err
	}

	offers := BindOffers(e.offers, p.ID)
	var results [3]*domain.Assessment

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range e.evaluators {
		g.Go(func() error {
			in := EvaluationInput{
				ProjectID: p.ID,
				Items:     cloneItems(items),
				Context:   p.Context.Clone(),
				Offers:    offers,
			}
			if ev.Role() == domain.RoleSourcing {
				in.MarketIntel = st.intel
			}

			started := time.Now()
			a, err := evaluate(gctx, ev, in)
			e.metrics.ObserveEvaluation(string(ev.Role()), err != nil, time.Since(started))

			if err != nil {
				if traceErr := e.trace(ctx, st, domain.TraceStep{
					Stage:   domain.StageParallelReview,
					Actor:   string(ev.Role()),
					Message: fmt.Sprintf("%s review failed: %v", roleTitle(ev.Role()), err),
				}); traceErr != nil {
					return traceErr
				}
				return err
			}

			results[i] = a
			return e.trace(ctx, st, domain.TraceStep{
				Stage:      domain.StageParallelReview,
				Actor:      string(ev.Role()),
				Message:    fmt.Sprintf("%s review complete: %d concerns", roleTitle(ev.Role()), len(a.Concerns)),
				Reasoning:  truncate(a.Analysis, maxReasoningLen),
				References: firstN(a.ConcernStrings(), 10),
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, role := range domain.Roles() {
		st.assessments[role] = results[i]
	}

	for _, i := range batch {
		if err := p.LineItems[i].Transition(domain.LineItemPendingFinalDecision); err != nil {
			return err
		}
	}
	return nil
}

// evaluate вызывает специалиста и проверяет результат.
func evaluate(ctx context.Context, ev Evaluator, in EvaluationInput) (a *domain.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrEvaluator, ev.Role(), r)
		}
	}()

	a, err = ev.Evaluate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEvaluator, ev.Role(), err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s returned no assessment", ErrEvaluator, ev.Role())
	}
	if a.Role != ev.Role() {
		return nil, fmt.Errorf("%w: %s returned assessment for %q", ErrRoleMismatch, ev.Role(), a.Role)
	}
	return a, nil
}

// finalDecision вызывает синтезатор и применяет вердикты к позициям.
//
// Отсутствующий вердикт или вердикт для MPN вне батча — нарушение контракта
// синтезатора, прогон падает.
func (e *Engine) finalDecision(ctx context.Context, st *runState) error {
	p := st.project

	pending := p.ItemsWithStatus(domain.LineItemPendingFinalDecision)
	items := make([]domain.LineItem, len(pending))
	for j, i := range pending {
		items[j] = cloneItem(p.LineItems[i])
	}
	submitted := domain.MPNs(items)

	for _, role := range domain.Roles() {
		if st.assessments[role] == nil {
			return fmt.Errorf("%w: no %s assessment in this run", ErrSynthesizer, role)
		}
	}

	report, err := e.decide(ctx, DecisionInput{
		ProjectID:   p.ID,
		Items:       items,
		Context:     p.Context.Clone(),
		Engineering: st.assessments[domain.RoleEngineering],
		Sourcing:    st.assessments[domain.RoleSourcing],
		Finance:     st.assessments[domain.RoleFinance],
	})
	if err != nil {
		return err
	}
	if err := report.Validate(submitted, p.Context.Requirements.BudgetTotal); err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesizer, err)
	}

	now := time.Now()
	for _, v := range report.Verdicts {
		decision := &domain.ItemDecision{
			ReportID:         report.ID,
			ExecutiveSummary: report.ExecutiveSummary,
			TotalApproved:    report.Summary.TotalApproved,
			TotalRejected:    report.Summary.TotalRejected,
			TotalSpend:       report.Summary.TotalSpend,
			BudgetRemaining:  report.Summary.BudgetRemaining,
			DecidedAt:        now,
		}
		for _, i := range pending {
			item := &p.LineItems[i]
			if item.MPN != v.MPN {
				continue
			}
			if err := applyVerdict(item, v, decision); err != nil {
				return err
			}
		}
		e.metrics.Verdict(string(v.Verdict))

		if err := e.trace(ctx, st, verdictStep(v)); err != nil {
			return err
		}
	}

	p.Report = report

	s := report.Summary
	return e.trace(ctx, st, domain.TraceStep{
		Stage: domain.StageFinalDecision,
		Actor: "final_decision",
		Message: fmt.Sprintf("Final decision: %d approved, %d rejected, total spend $%.2f (%.1f%% of budget), risk %s",
			s.TotalApproved, s.TotalRejected, s.TotalSpend, s.BudgetUtilizationPct, s.RiskLevel),
		Reasoning:  truncate(report.ExecutiveSummary, maxReasoningLen),
		References: firstN(s.KeyRisks, 5),
	})
}

// decide вызывает синтезатор, превращая панику в ошибку.
func (e *Engine) decide(ctx context.Context, in DecisionInput) (report *domain.FinalDecisionReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: synthesizer panicked: %v", ErrSynthesizer, r)
		}
	}()

	report, err = e.synthesizer.Decide(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesizer, err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: synthesizer returned no report", ErrSynthesizer)
	}
	return report, nil
}

// applyVerdict переводит позицию по вердикту и сохраняет запись решения.
func applyVerdict(item *domain.LineItem, v domain.VerdictRecord, base *domain.ItemDecision) error {
	d := *base
	d.VerdictRecord = v
	item.Decision = &d

	if v.Verdict == domain.VerdictApproved {
		if err := item.Transition(domain.LineItemPendingPurchase); err != nil {
			return err
		}
		item.SelectedSupplierID = v.SupplierID
		item.SelectedSupplierName = v.SupplierName
		item.SelectedMPN = v.MPN
		if v.SelectedMPN != "" {
			item.SelectedMPN = v.SelectedMPN
		}
		return nil
	}

	reason := v.Rationale
	if reason == "" {
		reason = "rejected at final decision"
	}
	return item.Fail(reason)
}

func verdictStep(v domain.VerdictRecord) domain.TraceStep {
	msg := fmt.Sprintf("%s: %s", v.MPN, v.Verdict)
	if v.Verdict == domain.VerdictApproved {
		msg = fmt.Sprintf("%s: APPROVED - %s x%d @ $%.4f = $%.2f",
			v.MPN, v.SupplierName, v.Quantity, v.UnitPrice, v.LineCost)
	}
	return domain.TraceStep{
		Stage:      domain.StageFinalDecision,
		Actor:      "final_decision",
		Message:    msg,
		Reasoning:  truncate(v.Rationale, maxReasoningLen),
		References: firstN(v.ConflictPoints, 5),
	}
}

// activeItems возвращает копии позиций, которые ещё не упали.
func activeItems(p *domain.Project) []domain.LineItem {
	var out []domain.LineItem
	for _, it := range p.LineItems {
		if it.Status != domain.LineItemFailed {
			out = append(out, cloneItem(it))
		}
	}
	return out
}

func cloneItem(it domain.LineItem) domain.LineItem {
	if it.RefDes != nil {
		rd := make([]string, len(it.RefDes))
		copy(rd, it.RefDes)
		it.RefDes = rd
	}
	it.Decision = nil
	return it
}

func cloneItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	for i, it := range items {
		out[i] = cloneItem(it)
	}
	return out
}

func refLabel(item *domain.LineItem) string {
	if len(item.RefDes) == 0 {
		return "(no reference designator)"
	}
	return strings.Join(item.RefDes, ",")
}

func roleTitle(r domain.Role) string {
	switch r {
	case domain.RoleEngineering:
		return "Engineering"
	case domain.RoleSourcing:
		return "Sourcing"
	case domain.RoleFinance:
		return "Finance"
	default:
		return string(r)
	}
}
