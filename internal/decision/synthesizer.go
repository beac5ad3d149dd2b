package decision

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/narrate"
)

const summarySystem = `You are the senior procurement decision authority.
Write a two or three paragraph executive summary of the purchasing decisions below.
State the approved and rejected counts, total spend against budget, and the main risks.
Do not change any verdict or number.`

// Synthesizer — детерминированный синтезатор решений.
type Synthesizer struct {
	narrator narrate.Narrator
}

// New создаёт синтезатор. narrator может быть nil.
func New(narrator narrate.Narrator) *Synthesizer {
	return &Synthesizer{narrator: narrator}
}

// Decide выносит ровно один вердикт на каждый уникальный MPN батча.
//
// REJECTED, если хотя бы один специалист заблокировал деталь или sourcing
// не нашёл поставщика; иначе APPROVED по выбору sourcing.
func (s *Synthesizer) Decide(ctx context.Context, in flow.DecisionInput) (*domain.FinalDecisionReport, error) {
	budget := in.Context.Requirements.BudgetTotal
	report := domain.NewReport()

	mpns := domain.MPNs(in.Items)
	if len(mpns) == 0 {
		report.ExecutiveSummary = "No parts to evaluate."
		report.Finalize(budget)
		return report, nil
	}

	qty := quantities(in.Items)
	for _, mpn := range mpns {
		report.Verdicts = append(report.Verdicts, s.verdict(in, mpn, qty[mpn]))
	}
	report.Finalize(budget)
	summarize(report, in)
	report.FollowUps = followUps(report, in)

	fallback := fallbackSummary(report)
	text, err := narrate.Or(ctx, s.narrator, narrate.Prompt{System: summarySystem, User: briefing(report, in)}, fallback)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNarrator, err)
	}
	report.ExecutiveSummary = text
	return report, nil
}

type opinion struct {
	role       domain.Role
	assessment *domain.Assessment
}

func opinions(in flow.DecisionInput) []opinion {
	return []opinion{
		{domain.RoleEngineering, in.Engineering},
		{domain.RoleSourcing, in.Sourcing},
		{domain.RoleFinance, in.Finance},
	}
}

func (s *Synthesizer) verdict(in flow.DecisionInput, mpn string, qty int) domain.VerdictRecord {
	v := domain.VerdictRecord{
		MPN:      mpn,
		Findings: make(map[domain.Role]string, 3),
	}

	var blockers, clear, blockingRoles []string
	for _, op := range opinions(in) {
		v.Findings[op.role] = findingText(op.assessment, mpn)

		concerns := op.assessment.ConcernsFor(mpn)
		if op.assessment.Blocks(mpn) {
			blockingRoles = append(blockingRoles, title(op.role))
			for _, c := range concerns {
				if c.Severity == domain.SeverityBlocking {
					blockers = append(blockers, title(op.role)+": "+c.Message)
				}
			}
			continue
		}
		for _, c := range concerns {
			if c.Severity == domain.SeverityWarning {
				v.RiskFactors = append(v.RiskFactors, c.Message)
			}
		}
		if len(concerns) == 0 {
			clear = append(clear, title(op.role))
		}
	}

	if len(clear) == 3 {
		v.AgreementPoints = append(v.AgreementPoints, "All specialists support procurement without concerns")
	} else if len(clear) > 0 {
		v.AgreementPoints = append(v.AgreementPoints, strings.Join(clear, " and ")+" raised no concerns")
	}
	if len(blockingRoles) > 0 && len(blockingRoles) < 3 {
		v.ConflictPoints = append(v.ConflictPoints,
			fmt.Sprintf("%s blocks the part while the other specialists do not", strings.Join(blockingRoles, " and ")))
	}
	v.Mitigations = mitigations(in, mpn)

	pick, ok := in.Sourcing.Finding(mpn)
	switch {
	case len(blockers) > 0:
		v.Verdict = domain.VerdictRejected
		v.Rationale = "Rejected: " + strings.Join(blockers, "; ")
	case !ok || pick.SupplierID == "":
		v.Verdict = domain.VerdictRejected
		v.Rationale = "Rejected: sourcing recommended no supplier"
	default:
		v.Verdict = domain.VerdictApproved
		v.SupplierID = pick.SupplierID
		v.SupplierName = pick.SupplierName
		v.SelectedMPN = pick.SelectedMPN
		v.Quantity = pick.OrderQty
		if v.Quantity < qty {
			v.Quantity = qty
		}
		v.UnitPrice = pick.UnitPrice
		v.LineCost = math.Round(float64(v.Quantity)*pick.UnitPrice*100) / 100
		v.Rationale = fmt.Sprintf("Approved: purchase %d from %s at $%.4f/unit", v.Quantity, v.SupplierName, v.UnitPrice)
		if v.SelectedMPN != "" {
			v.Rationale += " using approved alternate " + v.SelectedMPN
		}
		for _, r := range v.RiskFactors {
			v.Conditions = append(v.Conditions, "Resolve before PO: "+r)
		}
	}
	return v
}

// findingText объединяет вывод специалиста и его замечания по детали.
func findingText(a *domain.Assessment, mpn string) string {
	if a == nil {
		return "No assessment"
	}
	text := "No finding"
	if f, ok := a.Finding(mpn); ok && f.Summary != "" {
		text = f.Summary
	}
	concerns := a.ConcernsFor(mpn)
	if len(concerns) == 0 {
		return text
	}
	msgs := make([]string, 0, len(concerns))
	for _, c := range concerns {
		msgs = append(msgs, fmt.Sprintf("[%s] %s", c.Severity, c.Message))
	}
	return text + ". Concerns: " + strings.Join(msgs, "; ")
}

// mitigations берёт рекомендации специалистов, относящиеся к детали.
func mitigations(in flow.DecisionInput, mpn string) []string {
	var out []string
	for _, op := range opinions(in) {
		if op.assessment == nil {
			continue
		}
		for _, r := range op.assessment.Recommendations {
			if strings.HasPrefix(r, mpn+":") {
				out = append(out, r)
			}
		}
	}
	return out
}

// summarize заполняет уровень риска, ключевые риски и рекомендации проекта.
func summarize(r *domain.FinalDecisionReport, in flow.DecisionInput) {
	sum := &r.Summary
	warnings := 0
	overBudget := sum.BudgetTotal > 0 && sum.TotalSpend > sum.BudgetTotal

	for _, v := range r.Verdicts {
		if v.Verdict == domain.VerdictRejected {
			sum.KeyRisks = append(sum.KeyRisks, v.MPN+": "+strings.TrimPrefix(v.Rationale, "Rejected: "))
		}
		warnings += len(v.RiskFactors)
	}
	seen := make(map[string]bool)
	for _, op := range opinions(in) {
		if op.assessment == nil {
			continue
		}
		for _, c := range op.assessment.Concerns {
			if c.MPN == "" && c.Severity != domain.SeverityInfo {
				sum.KeyRisks = append(sum.KeyRisks, c.Message)
				warnings++
			}
		}
		for _, rec := range op.assessment.Recommendations {
			if !seen[rec] {
				seen[rec] = true
				sum.Recommendations = append(sum.Recommendations, rec)
			}
		}
	}
	if overBudget {
		sum.KeyRisks = append(sum.KeyRisks,
			fmt.Sprintf("Approved spend $%.2f exceeds budget $%.2f", sum.TotalSpend, sum.BudgetTotal))
	}

	switch {
	case sum.TotalRejected > 0 || overBudget:
		sum.RiskLevel = domain.RiskHigh
	case warnings > 0:
		sum.RiskLevel = domain.RiskMedium
	default:
		sum.RiskLevel = domain.RiskLow
	}
}

func followUps(r *domain.FinalDecisionReport, in flow.DecisionInput) []domain.FollowUpItem {
	engineering := in.Context.EngineeringContact
	if engineering == "" {
		engineering = string(domain.RoleEngineering)
	}
	owner := in.Context.Owner
	if owner == "" {
		owner = string(domain.RoleFinance)
	}

	var out []domain.FollowUpItem
	for _, v := range r.Verdicts {
		switch v.Verdict {
		case domain.VerdictRejected:
			out = append(out, domain.FollowUpItem{
				MPN:      v.MPN,
				Action:   "Find a replacement: " + strings.TrimPrefix(v.Rationale, "Rejected: "),
				Owner:    engineering,
				Priority: "HIGH",
			})
		case domain.VerdictApproved:
			for _, c := range v.Conditions {
				out = append(out, domain.FollowUpItem{
					MPN:      v.MPN,
					Action:   c,
					Owner:    string(domain.RoleSourcing),
					Priority: "MEDIUM",
				})
			}
		}
	}
	s := r.Summary
	if s.BudgetTotal > 0 && s.TotalSpend > s.BudgetTotal {
		out = append(out, domain.FollowUpItem{
			Action:   fmt.Sprintf("Approve budget increase of $%.2f or reduce scope", s.TotalSpend-s.BudgetTotal),
			Owner:    owner,
			Priority: "HIGH",
		})
	}
	return out
}

func fallbackSummary(r *domain.FinalDecisionReport) string {
	s := r.Summary
	text := fmt.Sprintf("Reviewed %d parts: %d approved, %d rejected. Estimated spend $%.2f",
		s.TotalItems, s.TotalApproved, s.TotalRejected, s.TotalSpend)
	if s.BudgetTotal > 0 {
		text += fmt.Sprintf(" of $%.2f budget (%.1f%%)", s.BudgetTotal, s.BudgetUtilizationPct)
	} else {
		text += " with no budget specified"
	}
	text += fmt.Sprintf(". Overall risk: %s.", s.RiskLevel)
	if len(s.KeyRisks) > 0 {
		text += " Key risks: " + strings.Join(s.KeyRisks, "; ") + "."
	}
	return text
}

// briefing — факты для модели: вердикты и оценки специалистов.
func briefing(r *domain.FinalDecisionReport, in flow.DecisionInput) string {
	var sb strings.Builder
	name := in.Context.Name
	if name == "" {
		name = in.ProjectID.String()
	}
	fmt.Fprintf(&sb, "Project: %s\n%s\n\nVerdicts:\n", name, fallbackSummary(r))
	for _, v := range r.Verdicts {
		fmt.Fprintf(&sb, "- %s: %s. %s\n", v.MPN, v.Verdict, v.Rationale)
	}
	for _, op := range opinions(in) {
		if op.assessment == nil {
			continue
		}
		fmt.Fprintf(&sb, "\n%s analysis:\n%s\n", title(op.role), op.assessment.Analysis)
	}
	return sb.String()
}

func quantities(items []domain.LineItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.MPN] += it.Quantity
	}
	return out
}

func title(r domain.Role) string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
