package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/narrate"
)

const engineeringSystem = `You are a senior hardware engineer reviewing a bill of materials.
Summarize the technical suitability of the parts below in one or two short paragraphs.
Mention every banned, obsolete or non-compliant part by MPN. Do not invent facts.`

// Engineering проверяет техническую пригодность деталей:
// запреты, жизненный цикл, RoHS, историю отказов, критичность и альтернативы.
type Engineering struct {
	knowledge flow.KnowledgeStore
	narrator  narrate.Narrator
}

// NewEngineering создаёт инженерного специалиста. narrator может быть nil.
func NewEngineering(knowledge flow.KnowledgeStore, narrator narrate.Narrator) *Engineering {
	return &Engineering{knowledge: knowledge, narrator: narrator}
}

// Role возвращает domain.RoleEngineering.
func (e *Engineering) Role() domain.Role { return domain.RoleEngineering }

// Evaluate оценивает батч.
func (e *Engineering) Evaluate(ctx context.Context, in flow.EvaluationInput) (*domain.Assessment, error) {
	if len(in.Items) == 0 {
		return domain.NewEmptyAssessment(domain.RoleEngineering), nil
	}

	parts, unnamed := groupParts(in.Items)
	b := newBuilder(domain.RoleEngineering, parts)

	for _, it := range unnamed {
		b.concern("", domain.SeverityBlocking, "%s: missing MPN, part cannot be identified", unnamedLabel(it))
	}

	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.evaluatePart(ctx, in, p, b); err != nil {
			return nil, err
		}
	}

	headline := fmt.Sprintf("Engineering reviewed %d parts: %d blocking issues, %d warnings.",
		len(parts), b.blocking, b.warnings)
	if notes := in.Context.EngineeringContext.Notes; notes != "" {
		headline += " Engineering notes: " + notes
	}
	facts := b.facts(headline)

	analysis, err := narrate.Or(ctx, e.narrator, narrate.Prompt{System: engineeringSystem, User: facts}, facts)
	if err != nil {
		return nil, fmt.Errorf("%w: engineering: %v", ErrNarrator, err)
	}
	b.a.Analysis = analysis
	return b.a, nil
}

func (e *Engineering) evaluatePart(ctx context.Context, in flow.EvaluationInput, p part, b *builder) error {
	banned, reason, err := e.knowledge.IsPartBanned(ctx, p.MPN)
	if err != nil {
		return fmt.Errorf("%w: ban check %s: %v", ErrKnowledge, p.MPN, err)
	}
	alternates, err := e.knowledge.ApprovedAlternates(ctx, p.MPN)
	if err != nil {
		return fmt.Errorf("%w: alternates %s: %v", ErrKnowledge, p.MPN, err)
	}
	history, err := e.knowledge.PartKnowledge(ctx, p.MPN)
	if err != nil {
		return fmt.Errorf("%w: part history %s: %v", ErrKnowledge, p.MPN, err)
	}
	offers, err := lookupOffers(ctx, in.Offers, p.MPN)
	if err != nil {
		return err
	}

	var notes []string
	blocking := false

	if banned {
		msg := "BANNED"
		if reason != "" {
			msg += " - " + reason
		}
		b.concern(p.MPN, domain.SeverityBlocking, "%s", msg)
		notes = append(notes, msg)
		blocking = true
	}

	switch lifecycle(offers) {
	case domain.LifecycleObsolete:
		b.concern(p.MPN, domain.SeverityBlocking, "Obsolete - part is no longer manufactured")
		notes = append(notes, "obsolete")
		blocking = true
	case domain.LifecycleNRND:
		b.concern(p.MPN, domain.SeverityWarning, "NRND - not recommended for new designs")
		notes = append(notes, "NRND")
	}

	if in.Context.Compliance.RequiresRoHS() && len(offers) > 0 && !anyRoHS(offers) {
		b.concern(p.MPN, domain.SeverityBlocking, "Not RoHS compliant (project requires RoHS)")
		notes = append(notes, "not RoHS compliant")
		blocking = true
	}

	if history != nil && history.FailureCount > 0 {
		b.concern(p.MPN, domain.SeverityWarning, "%d recorded failures across %d uses",
			history.FailureCount, history.TimesUsed)
		notes = append(notes, fmt.Sprintf("%d past failures", history.FailureCount))
	}

	if in.Context.EngineeringContext.IsCritical(p.MPN) {
		b.concern(p.MPN, domain.SeverityInfo, "Critical part - requires engineering sign-off")
		notes = append(notes, "critical")
	}

	pref := in.Context.EngineeringContext.PreferredManufacturers
	if p.Manufacturer != "" && len(pref) > 0 && !in.Context.EngineeringContext.IsPreferredManufacturer(p.Manufacturer) {
		b.concern(p.MPN, domain.SeverityInfo, "Manufacturer %s is not on the preferred list", p.Manufacturer)
	}

	if len(alternates) > 0 {
		b.recommend("%s: approved alternates %s", p.MPN, strings.Join(alternates, ", "))
		notes = append(notes, "alternates: "+strings.Join(alternates, ", "))
	}

	summary := "Technically acceptable"
	if blocking {
		summary = "Not acceptable"
	}
	if len(notes) > 0 {
		summary += " (" + strings.Join(notes, "; ") + ")"
	}
	b.finding(domain.PartFinding{MPN: p.MPN, Summary: summary, Blocking: blocking})
	return nil
}

// lifecycle возвращает худший статус жизненного цикла среди предложений.
func lifecycle(offers []domain.Offer) string {
	worst := ""
	for _, o := range offers {
		switch strings.ToLower(o.Lifecycle) {
		case domain.LifecycleObsolete:
			return domain.LifecycleObsolete
		case domain.LifecycleNRND:
			worst = domain.LifecycleNRND
		case domain.LifecycleActive:
			if worst == "" {
				worst = domain.LifecycleActive
			}
		}
	}
	return worst
}

func anyRoHS(offers []domain.Offer) bool {
	for _, o := range offers {
		if o.RoHSCompliant {
			return true
		}
	}
	return false
}
