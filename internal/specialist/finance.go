package specialist

import (
	"context"
	"fmt"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/narrate"
)

const financeSystem = `You are a procurement finance analyst.
Summarize the estimated spend for the parts below against the project budget
in one short paragraph. Call out budget overruns explicitly. Do not invent prices.`

// budgetWarnRatio — доля бюджета, после которой выдаётся предупреждение.
const budgetWarnRatio = 0.9

// Finance оценивает стоимость и соответствие бюджету.
type Finance struct {
	narrator narrate.Narrator
}

// NewFinance создаёт финансового специалиста. narrator может быть nil.
func NewFinance(narrator narrate.Narrator) *Finance {
	return &Finance{narrator: narrator}
}

// Role возвращает domain.RoleFinance.
func (f *Finance) Role() domain.Role { return domain.RoleFinance }

// Evaluate оценивает батч.
//
// Для каждой детали берётся самое дешёвое предложение с учётом MOQ,
// итог сравнивается с бюджетом проекта.
func (f *Finance) Evaluate(ctx context.Context, in flow.EvaluationInput) (*domain.Assessment, error) {
	if len(in.Items) == 0 {
		return domain.NewEmptyAssessment(domain.RoleFinance), nil
	}

	parts, _ := groupParts(in.Items)
	b := newBuilder(domain.RoleFinance, parts)
	budget := in.Context.Requirements.BudgetTotal

	var total float64
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offers, err := lookupOffers(ctx, in.Offers, p.MPN)
		if err != nil {
			return nil, err
		}

		best, ok := cheapest(offers, p.Quantity)
		if !ok {
			b.concern(p.MPN, domain.SeverityWarning, "No pricing data available")
			b.finding(domain.PartFinding{MPN: p.MPN, Summary: "No pricing data available"})
			continue
		}

		orderQty := best.OrderQuantity(p.Quantity)
		unit := best.UnitPriceAt(orderQty)
		cost := float64(orderQty) * unit
		total += cost

		summary := fmt.Sprintf("Best price $%.4f/unit at %s, order %d (MOQ %d), est. $%.2f, running total $%.2f",
			unit, best.SupplierName, orderQty, best.MOQ, cost, total)
		if orderQty > p.Quantity {
			b.concern(p.MPN, domain.SeverityInfo, "MOQ %d exceeds required %d at %s", best.MOQ, p.Quantity, best.SupplierName)
		}
		b.finding(domain.PartFinding{
			MPN:          p.MPN,
			Summary:      summary,
			SupplierID:   best.SupplierID,
			SupplierName: best.SupplierName,
			OrderQty:     orderQty,
			UnitPrice:    unit,
			LineCost:     cost,
		})
	}

	// Незаданный бюджет равен 0: любая ненулевая сумма его превышает.
	switch {
	case total > budget:
		b.concern("", domain.SeverityWarning, "Estimated spend ($%.2f) exceeds budget ($%.2f)", total, budget)
		b.recommend("Reduce quantities or request a budget increase of $%.2f", total-budget)
	case budget > 0 && total > budget*budgetWarnRatio:
		b.concern("", domain.SeverityWarning, "Estimated spend ($%.2f) is over 90%% of budget", total)
	}
	if budget <= 0 {
		b.concern("", domain.SeverityInfo, "No budget specified")
	}

	headline := fmt.Sprintf("Finance estimated $%.2f across %d parts", total, len(parts))
	if budget > 0 {
		headline += fmt.Sprintf(" against a $%.2f budget ($%.2f remaining).", budget, budget-total)
	} else {
		headline += "."
	}
	facts := b.facts(headline)

	analysis, err := narrate.Or(ctx, f.narrator, narrate.Prompt{System: financeSystem, User: facts}, facts)
	if err != nil {
		return nil, fmt.Errorf("%w: finance: %v", ErrNarrator, err)
	}
	b.a.Analysis = analysis
	return b.a, nil
}

// cheapest возвращает предложение с наименьшей стоимостью заказа qty штук.
func cheapest(offers []domain.Offer, qty int) (domain.Offer, bool) {
	var best domain.Offer
	found := false
	for _, o := range offers {
		if len(o.PriceBreaks) == 0 {
			continue
		}
		if !found || o.LineCost(qty) < best.LineCost(qty) {
			best, found = o, true
		}
	}
	return best, found
}
