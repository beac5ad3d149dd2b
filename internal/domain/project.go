package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LineItem — одна позиция BOM.
type LineItem struct {
	// RefDes — позиционные обозначения в порядке из BOM ("R1", "R2", ...).
	RefDes []string `json:"ref_des"`

	// MPN — номер детали производителя. Может быть пустым:
	// такая позиция создаётся, но падает на enrich.
	MPN string `json:"mpn"`

	// Quantity — требуемое количество, всегда >= 1.
	Quantity int `json:"quantity"`

	Manufacturer string `json:"manufacturer,omitempty"`
	Description  string `json:"description,omitempty"`
	Package      string `json:"package,omitempty"`
	Value        string `json:"value,omitempty"`

	Status LineItemStatus `json:"status"`

	// Decision — аудиторская запись итогового решения.
	// Nil до этапа final_decision.
	Decision *ItemDecision `json:"decision,omitempty"`

	// SelectedSupplierID / SelectedSupplierName / SelectedMPN заполняются при одобрении.
	SelectedSupplierID   string `json:"selected_supplier_id,omitempty"`
	SelectedSupplierName string `json:"selected_supplier_name,omitempty"`
	SelectedMPN          string `json:"selected_mpn,omitempty"`

	// FailureReason — причина перехода в FAILED.
	FailureReason string `json:"failure_reason,omitempty"`
}

// NewLineItem создаёт позицию в статусе PENDING.
// Количество меньше 1 заменяется на 1.
func NewLineItem(refDes []string, mpn string, qty int) LineItem {
	if qty < 1 {
		qty = 1
	}
	return LineItem{
		RefDes:   refDes,
		MPN:      strings.TrimSpace(mpn),
		Quantity: qty,
		Status:   LineItemPending,
	}
}

// Transition переводит позицию в новый статус.
func (li *LineItem) Transition(to LineItemStatus) error {
	if !li.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (mpn %q)", ErrInvalidTransition, li.Status, to, li.MPN)
	}
	li.Status = to
	return nil
}

// Fail переводит позицию в FAILED с причиной.
func (li *LineItem) Fail(reason string) error {
	if err := li.Transition(LineItemFailed); err != nil {
		return err
	}
	li.FailureReason = reason
	return nil
}

// ItemDecision — запись итогового решения по позиции для аудита.
type ItemDecision struct {
	VerdictRecord

	// ReportID — отчёт, из которого взято решение.
	ReportID uuid.UUID `json:"report_id"`

	ExecutiveSummary string  `json:"executive_summary,omitempty"`
	TotalApproved    int     `json:"total_approved"`
	TotalRejected    int     `json:"total_rejected"`
	TotalSpend       float64 `json:"total_spend"`
	BudgetRemaining  float64 `json:"budget_remaining"`

	DecidedAt time.Time `json:"decided_at"`
}

// TraceStep — запись аудиторского журнала проекта.
//
// Seq строго возрастает внутри проекта; записи не изменяются и не удаляются.
type TraceStep struct {
	Seq        int       `json:"seq"`
	Stage      Stage     `json:"stage"`
	Actor      string    `json:"actor,omitempty"`
	Message    string    `json:"message"`
	Reasoning  string    `json:"reasoning,omitempty"`
	References []string  `json:"references,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Project — одна подача BOM и её состояние в конвейере.
type Project struct {
	ID     uuid.UUID     `json:"id"`
	Name   string        `json:"name"`
	Status ProjectStatus `json:"status"`

	// FailedStage — этап, на котором произошла ошибка. Пусто, если ошибки нет.
	FailedStage Stage `json:"failed_stage,omitempty"`

	// Error — текст ошибки. Непустой Error означает, что оставшиеся этапы пропускаются.
	Error string `json:"error,omitempty"`

	Context   ProjectContext `json:"context"`
	LineItems []LineItem     `json:"line_items"`
	Trace     []TraceStep    `json:"trace"`

	// Report — итоговый отчёт. Nil до завершения final_decision.
	Report *FinalDecisionReport `json:"report,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewProject создаёт проект на этапе intake.
func NewProject(name string, ctx ProjectContext, items []LineItem) *Project {
	now := time.Now()
	if items == nil {
		items = []LineItem{}
	}
	return &Project{
		ID:        uuid.New(),
		Name:      name,
		Status:    ProjectStatusIntake,
		Context:   ctx,
		LineItems: items,
		Trace:     []TraceStep{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Failed возвращает true, если проект в ошибке.
func (p *Project) Failed() bool {
	return p.Error != "" || p.Status == ProjectStatusFailed
}

// MarkStage переводит проект на указанный этап.
func (p *Project) MarkStage(s Stage) {
	p.Status = ProjectStatus(s)
	p.UpdatedAt = time.Now()
}

// MarkFailed переводит проект в failed с указанием этапа.
func (p *Project) MarkFailed(stage Stage, err string) {
	now := time.Now()
	p.Status = ProjectStatusFailed
	p.FailedStage = stage
	p.Error = err
	p.UpdatedAt = now
	p.CompletedAt = &now
}

// MarkComplete переводит проект в complete.
func (p *Project) MarkComplete() {
	now := time.Now()
	p.Status = ProjectStatusComplete
	p.UpdatedAt = now
	p.CompletedAt = &now
}

// AppendTrace добавляет запись в журнал, назначая следующий Seq.
func (p *Project) AppendTrace(step TraceStep) TraceStep {
	step.Seq = len(p.Trace) + 1
	if n := len(p.Trace); n > 0 && p.Trace[n-1].Seq >= step.Seq {
		step.Seq = p.Trace[n-1].Seq + 1
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	p.Trace = append(p.Trace, step)
	p.UpdatedAt = step.Timestamp
	return step
}

// ItemsWithStatus возвращает индексы позиций в указанном статусе.
func (p *Project) ItemsWithStatus(s LineItemStatus) []int {
	var idx []int
	for i := range p.LineItems {
		if p.LineItems[i].Status == s {
			idx = append(idx, i)
		}
	}
	return idx
}

// MPNs возвращает уникальные непустые MPN в порядке первого появления.
func MPNs(items []LineItem) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if it.MPN == "" || seen[it.MPN] {
			continue
		}
		seen[it.MPN] = true
		out = append(out, it.MPN)
	}
	return out
}

// Clone возвращает глубокую копию проекта.
// Хранилища отдают и принимают только копии.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	out := *p
	out.Context = p.Context.Clone()

	out.LineItems = make([]LineItem, len(p.LineItems))
	for i, it := range p.LineItems {
		it.RefDes = cloneStrings(it.RefDes)
		if it.Decision != nil {
			d := *it.Decision
			d.VerdictRecord = d.VerdictRecord.clone()
			it.Decision = &d
		}
		out.LineItems[i] = it
	}

	out.Trace = make([]TraceStep, len(p.Trace))
	for i, s := range p.Trace {
		s.References = cloneStrings(s.References)
		out.Trace[i] = s
	}

	out.Report = p.Report.Clone()
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
