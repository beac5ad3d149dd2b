package specialist

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/narrate"
)

const sourcingSystem = `You are a procurement sourcing specialist.
Summarize supplier selection for the parts below in one or two short paragraphs:
chosen suppliers, stock and lead-time risks, single-source exposure and market alerts.
Do not invent suppliers or prices.`

// Sourcing выбирает поставщика для каждой детали с учётом ограничений проекта
// и уровня доверия к поставщикам.
type Sourcing struct {
	knowledge flow.KnowledgeStore
	narrator  narrate.Narrator
}

// NewSourcing создаёт специалиста по закупкам. narrator может быть nil.
func NewSourcing(knowledge flow.KnowledgeStore, narrator narrate.Narrator) *Sourcing {
	return &Sourcing{knowledge: knowledge, narrator: narrator}
}

// Role возвращает domain.RoleSourcing.
func (s *Sourcing) Role() domain.Role { return domain.RoleSourcing }

// candidate — допустимое предложение с данными для ранжирования.
type candidate struct {
	offer     domain.Offer
	trust     domain.TrustLevel
	preferred bool
	orderQty  int
	unitPrice float64
	lineCost  float64
}

// Evaluate оценивает батч.
func (s *Sourcing) Evaluate(ctx context.Context, in flow.EvaluationInput) (*domain.Assessment, error) {
	if len(in.Items) == 0 {
		return domain.NewEmptyAssessment(domain.RoleSourcing), nil
	}

	parts, _ := groupParts(in.Items)
	b := newBuilder(domain.RoleSourcing, parts)

	// Поставщики кэшируются только на время одной оценки.
	suppliers := make(map[string]*domain.Supplier)

	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.evaluatePart(ctx, in, p, suppliers, b); err != nil {
			return nil, err
		}
	}

	headline := fmt.Sprintf("Sourcing reviewed %d parts: %d without a viable supplier, %d warnings.",
		len(parts), b.blocking, b.warnings)
	facts := b.facts(headline)

	analysis, err := narrate.Or(ctx, s.narrator, narrate.Prompt{System: sourcingSystem, User: facts}, facts)
	if err != nil {
		return nil, fmt.Errorf("%w: sourcing: %v", ErrNarrator, err)
	}
	b.a.Analysis = analysis
	return b.a, nil
}

func (s *Sourcing) evaluatePart(ctx context.Context, in flow.EvaluationInput, p part, suppliers map[string]*domain.Supplier, b *builder) error {
	constraints := in.Context.SourcingConstraints

	offers, err := lookupOffers(ctx, in.Offers, p.MPN)
	if err != nil {
		return err
	}
	eligible, excluded, err := s.filter(ctx, offers, p.Quantity, constraints, suppliers)
	if err != nil {
		return err
	}

	selectedMPN := p.MPN
	if len(eligible) == 0 && constraints.AllowAlternates {
		alternates, err := s.knowledge.ApprovedAlternates(ctx, p.MPN)
		if err != nil {
			return fmt.Errorf("%w: alternates %s: %v", ErrKnowledge, p.MPN, err)
		}
		for _, alt := range alternates {
			altOffers, err := lookupOffers(ctx, in.Offers, alt)
			if err != nil {
				return err
			}
			cands, _, err := s.filter(ctx, altOffers, p.Quantity, constraints, suppliers)
			if err != nil {
				return err
			}
			if len(cands) > 0 {
				eligible = cands
				selectedMPN = alt
				break
			}
		}
	}

	for _, alert := range in.MarketIntel.RelevantTo(p.MPN, p.Manufacturer) {
		b.concern(p.MPN, domain.SeverityWarning, "Market alert: %s", alert)
	}

	if len(eligible) == 0 {
		msg := "No offers available"
		if len(offers) > 0 {
			msg += " within sourcing constraints (" + strings.Join(excluded, "; ") + ")"
		}
		b.concern(p.MPN, domain.SeverityBlocking, "%s", msg)
		b.finding(domain.PartFinding{MPN: p.MPN, Summary: msg, Blocking: true})
		return nil
	}

	rank(eligible)
	best := eligible[0]

	if selectedMPN != p.MPN {
		b.concern(p.MPN, domain.SeverityInfo, "Sourced as approved alternate %s", selectedMPN)
	}
	if best.offer.Stock < best.orderQty {
		b.concern(p.MPN, domain.SeverityWarning, "Insufficient stock at %s: %d available, %d required",
			best.offer.SupplierName, best.offer.Stock, best.orderQty)
	}
	if distinctSuppliers(eligible) == 1 && !constraints.SingleSourceOK {
		b.concern(p.MPN, domain.SeverityWarning, "Single source: only %s can supply", best.offer.SupplierName)
	}
	if best.trust == domain.TrustLow {
		b.concern(p.MPN, domain.SeverityWarning, "Selected supplier %s has low trust", best.offer.SupplierName)
	}
	if best.offer.Broker {
		b.concern(p.MPN, domain.SeverityWarning, "Selected supplier %s is a broker", best.offer.SupplierName)
	}

	var tags []string
	if best.preferred {
		tags = append(tags, "preferred")
	}
	if best.offer.Authorized {
		tags = append(tags, "authorized")
	}
	tags = append(tags, string(best.trust)+" trust", fmt.Sprintf("lead %dd", best.offer.LeadTimeDays))

	summary := fmt.Sprintf("Selected %s (%s): %d x $%.4f", best.offer.SupplierName,
		strings.Join(tags, ", "), best.orderQty, best.unitPrice)
	if selectedMPN != p.MPN {
		summary += " as alternate " + selectedMPN
	}

	f := domain.PartFinding{
		MPN:          p.MPN,
		Summary:      summary,
		SupplierID:   best.offer.SupplierID,
		SupplierName: best.offer.SupplierName,
		OrderQty:     best.orderQty,
		UnitPrice:    best.unitPrice,
		LineCost:     best.lineCost,
	}
	if selectedMPN != p.MPN {
		f.SelectedMPN = selectedMPN
	}
	b.finding(f)
	return nil
}

// filter отбрасывает брокеров (если запрещены), заблокированных поставщиков
// и предложения со сроком поставки выше допустимого.
func (s *Sourcing) filter(ctx context.Context, offers []domain.Offer, qty int, c domain.SourcingConstraints, suppliers map[string]*domain.Supplier) ([]candidate, []string, error) {
	var out []candidate
	var excluded []string
	for _, o := range offers {
		sup, err := s.supplier(ctx, o.SupplierID, suppliers)
		if err != nil {
			return nil, nil, err
		}
		trust := domain.TrustMedium
		if sup != nil && sup.TrustLevel != "" {
			trust = sup.TrustLevel
		}

		switch {
		case o.Broker && !c.AllowBrokers:
			excluded = append(excluded, o.SupplierName+": broker")
			continue
		case trust == domain.TrustBlocked:
			excluded = append(excluded, o.SupplierName+": blocked supplier")
			continue
		case c.MaxLeadTimeDays > 0 && o.LeadTimeDays > c.MaxLeadTimeDays:
			excluded = append(excluded, fmt.Sprintf("%s: lead time %dd > %dd", o.SupplierName, o.LeadTimeDays, c.MaxLeadTimeDays))
			continue
		}

		orderQty := o.OrderQuantity(qty)
		unit := o.UnitPriceAt(orderQty)
		out = append(out, candidate{
			offer:     o,
			trust:     trust,
			preferred: c.IsPreferred(o.SupplierID, o.SupplierName),
			orderQty:  orderQty,
			unitPrice: unit,
			lineCost:  float64(orderQty) * unit,
		})
	}
	return out, excluded, nil
}

func (s *Sourcing) supplier(ctx context.Context, id string, cache map[string]*domain.Supplier) (*domain.Supplier, error) {
	if sup, ok := cache[id]; ok {
		return sup, nil
	}
	sup, err := s.knowledge.Supplier(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: supplier %s: %v", ErrKnowledge, id, err)
	}
	cache[id] = sup
	return sup, nil
}

// rank упорядочивает кандидатов: предпочтительные, доверие, авторизованные, цена.
func rank(c []candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		if a.preferred != b.preferred {
			return a.preferred
		}
		if a.trust.Score() != b.trust.Score() {
			return a.trust.Score() > b.trust.Score()
		}
		if a.offer.Authorized != b.offer.Authorized {
			return a.offer.Authorized
		}
		if a.lineCost != b.lineCost {
			return a.lineCost < b.lineCost
		}
		return a.offer.SupplierID < b.offer.SupplierID
	})
}

func distinctSuppliers(c []candidate) int {
	seen := make(map[string]bool, len(c))
	for _, x := range c {
		seen[x.offer.SupplierID] = true
	}
	return len(seen)
}
