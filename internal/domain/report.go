package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// VerdictRecord — решение по одному MPN с обоснованием.
type VerdictRecord struct {
	MPN     string  `json:"mpn"`
	Verdict Verdict `json:"verdict"`

	// Заполняются только для APPROVED.
	SupplierID   string  `json:"supplier_id,omitempty"`
	SupplierName string  `json:"supplier_name,omitempty"`
	SelectedMPN  string  `json:"selected_mpn,omitempty"`
	Quantity     int     `json:"final_quantity,omitempty"`
	UnitPrice    float64 `json:"final_unit_price,omitempty"`
	LineCost     float64 `json:"final_line_cost,omitempty"`

	// Выводы специалистов по роли.
	Findings map[Role]string `json:"findings"`

	AgreementPoints []string `json:"agreement_points,omitempty"`
	ConflictPoints  []string `json:"conflict_points,omitempty"`
	Rationale       string   `json:"resolution_rationale"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	Mitigations     []string `json:"mitigations,omitempty"`
	Conditions      []string `json:"conditions,omitempty"`
}

func (v VerdictRecord) clone() VerdictRecord {
	if v.Findings != nil {
		m := make(map[Role]string, len(v.Findings))
		for k, s := range v.Findings {
			m[k] = s
		}
		v.Findings = m
	}
	v.AgreementPoints = cloneStrings(v.AgreementPoints)
	v.ConflictPoints = cloneStrings(v.ConflictPoints)
	v.RiskFactors = cloneStrings(v.RiskFactors)
	v.Mitigations = cloneStrings(v.Mitigations)
	v.Conditions = cloneStrings(v.Conditions)
	return v
}

// ProjectSummary — итоги по проекту.
type ProjectSummary struct {
	TotalItems           int       `json:"total_items"`
	TotalApproved        int       `json:"total_approved"`
	TotalRejected        int       `json:"total_rejected"`
	TotalSpend           float64   `json:"total_spend"`
	BudgetTotal          float64   `json:"budget_total"`
	BudgetRemaining      float64   `json:"budget_remaining"`
	BudgetUtilizationPct float64   `json:"budget_utilization_pct"`
	RiskLevel            RiskLevel `json:"risk_level"`
	KeyRisks             []string  `json:"key_risks,omitempty"`
	Recommendations      []string  `json:"recommendations,omitempty"`
}

// FollowUpItem — действие после решения.
type FollowUpItem struct {
	MPN      string `json:"mpn,omitempty"`
	Action   string `json:"action"`
	Owner    string `json:"owner,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// FinalDecisionReport — итоговый отчёт по проекту.
type FinalDecisionReport struct {
	ID               uuid.UUID       `json:"id"`
	ExecutiveSummary string          `json:"executive_summary"`
	Verdicts         []VerdictRecord `json:"verdicts"`
	Summary          ProjectSummary  `json:"summary"`
	FollowUps        []FollowUpItem  `json:"follow_ups,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewReport создаёт пустой отчёт. Для пустого батча это готовый нулевой отчёт
// после Finalize.
func NewReport() *FinalDecisionReport {
	return &FinalDecisionReport{
		ID:        uuid.New(),
		Verdicts:  []VerdictRecord{},
		Summary:   ProjectSummary{RiskLevel: RiskLow},
		CreatedAt: time.Now(),
	}
}

// Finalize пересчитывает итоги по вердиктам.
//
// LineCost одобренных вердиктов должны быть уже округлены до центов:
// тогда TotalSpend равен их сумме с точностью до цента и Validate проходит.
// budget_utilization_pct равен 0 при нулевом бюджете.
func (r *FinalDecisionReport) Finalize(budget float64) {
	s := &r.Summary
	s.TotalItems = len(r.Verdicts)
	s.TotalApproved, s.TotalRejected = 0, 0
	s.TotalSpend = 0
	for _, v := range r.Verdicts {
		if v.Verdict == VerdictApproved {
			s.TotalApproved++
			s.TotalSpend += v.LineCost
		} else {
			s.TotalRejected++
		}
	}
	s.TotalSpend = roundCents(s.TotalSpend)
	s.BudgetTotal = budget
	s.BudgetRemaining = roundCents(budget - s.TotalSpend)
	s.BudgetUtilizationPct = 0
	if budget > 0 {
		s.BudgetUtilizationPct = s.TotalSpend / budget * 100
	}
}

// Validate проверяет контракт отчёта относительно поданного батча.
//
// Ровно один вердикт на каждый MPN из submitted, только APPROVED/REJECTED,
// суммы и счётчики согласованы с вердиктами.
func (r *FinalDecisionReport) Validate(submitted []string, budget float64) error {
	if r == nil {
		return fmt.Errorf("%w: report is nil", ErrReportInvariant)
	}

	want := make(map[string]bool, len(submitted))
	for _, m := range submitted {
		want[m] = true
	}

	seen := make(map[string]bool, len(r.Verdicts))
	var spend float64
	var approved, rejected int
	for _, v := range r.Verdicts {
		if !want[v.MPN] {
			return fmt.Errorf("%w: %q", ErrUnexpectedVerdict, v.MPN)
		}
		if seen[v.MPN] {
			return fmt.Errorf("%w: duplicate verdict for %q", ErrUnexpectedVerdict, v.MPN)
		}
		seen[v.MPN] = true

		switch v.Verdict {
		case VerdictApproved:
			if v.LineCost < 0 {
				return fmt.Errorf("%w: negative line cost for %q", ErrReportInvariant, v.MPN)
			}
			approved++
			spend += v.LineCost
		case VerdictRejected:
			rejected++
		default:
			return fmt.Errorf("%w: verdict %q for %q", ErrReportInvariant, v.Verdict, v.MPN)
		}
	}

	for _, m := range submitted {
		if !seen[m] {
			return fmt.Errorf("%w: %q", ErrMissingVerdict, m)
		}
	}

	s := r.Summary
	if s.TotalApproved != approved || s.TotalRejected != rejected {
		return fmt.Errorf("%w: approved=%d rejected=%d, verdicts say %d/%d",
			ErrReportInvariant, s.TotalApproved, s.TotalRejected, approved, rejected)
	}
	if s.TotalApproved+s.TotalRejected != len(r.Verdicts) {
		return fmt.Errorf("%w: counts do not add up to %d verdicts", ErrReportInvariant, len(r.Verdicts))
	}
	if !moneyEqual(s.TotalSpend, spend) {
		return fmt.Errorf("%w: total_spend %.2f, approved line costs sum to %.2f",
			ErrReportInvariant, s.TotalSpend, spend)
	}
	if budget == 0 && s.BudgetUtilizationPct != 0 {
		return fmt.Errorf("%w: utilization %.2f with zero budget", ErrReportInvariant, s.BudgetUtilizationPct)
	}
	return nil
}

// Verdict возвращает вердикт по MPN.
func (r *FinalDecisionReport) Verdict(mpn string) (VerdictRecord, bool) {
	if r == nil {
		return VerdictRecord{}, false
	}
	for _, v := range r.Verdicts {
		if v.MPN == mpn {
			return v, true
		}
	}
	return VerdictRecord{}, false
}

// Clone возвращает глубокую копию отчёта.
func (r *FinalDecisionReport) Clone() *FinalDecisionReport {
	if r == nil {
		return nil
	}
	out := *r
	out.Verdicts = make([]VerdictRecord, len(r.Verdicts))
	for i, v := range r.Verdicts {
		out.Verdicts[i] = v.clone()
	}
	out.Summary.KeyRisks = cloneStrings(r.Summary.KeyRisks)
	out.Summary.Recommendations = cloneStrings(r.Summary.Recommendations)
	if r.FollowUps != nil {
		out.FollowUps = make([]FollowUpItem, len(r.FollowUps))
		copy(out.FollowUps, r.FollowUps)
	}
	return &out
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// moneyEqual сравнивает суммы с точностью до цента.
func moneyEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005+1e-9
}
