package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
)

// ConsoleTrace печатает записи журнала по мере их появления.
//
// Только потребитель: ничего не меняет в проекте и не влияет на конвейер.
func ConsoleTrace(w io.Writer) flow.TraceFunc {
	var mu sync.Mutex
	return func(_ context.Context, _ uuid.UUID, step domain.TraceStep) error {
		mu.Lock()
		defer mu.Unlock()
		return writeStep(w, step)
	}
}

func writeStep(w io.Writer, step domain.TraceStep) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%3d] %-16s", step.Seq, step.Stage)
	if step.Actor != "" {
		fmt.Fprintf(&b, " %s:", step.Actor)
	}
	b.WriteString(" ")
	b.WriteString(step.Message)
	b.WriteString("\n")
	if step.Reasoning != "" {
		fmt.Fprintf(&b, "      > %s\n", step.Reasoning)
	}
	for _, ref := range step.References {
		fmt.Fprintf(&b, "      - %s\n", ref)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// PrintTrace выводит журнал целиком.
func PrintTrace(out *Output, steps []domain.TraceStep) {
	if out.IsJSON() {
		out.JSON(steps)
		return
	}
	for _, s := range steps {
		_ = writeStep(out.Writer(), s)
	}
}

// PrintProject выводит состояние проекта и его позиции.
func PrintProject(out *Output, p *domain.Project) {
	if out.IsJSON() {
		out.JSON(p)
		return
	}

	w := out.Writer()
	fmt.Fprintf(w, "Project:  %s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(w, "Status:   %s\n", p.Status)
	if p.Error != "" {
		fmt.Fprintf(w, "Failed:   %s: %s\n", p.FailedStage, p.Error)
	}
	fmt.Fprintln(w)

	headers := []string{"MPN", "QTY", "STATUS", "SUPPLIER", "UNIT", "LINE"}
	rows := make([][]string, len(p.LineItems))
	for i, it := range p.LineItems {
		mpn := it.MPN
		if it.SelectedMPN != "" && it.SelectedMPN != it.MPN {
			mpn += " -> " + it.SelectedMPN
		}
		var unit, line string
		if d := it.Decision; d != nil {
			unit, line = money(d.UnitPrice), money(d.LineCost)
		}
		status := string(it.Status)
		if it.FailureReason != "" {
			status += ": " + it.FailureReason
		}
		rows[i] = []string{
			mpn,
			strconv.Itoa(it.Quantity),
			status,
			it.SelectedSupplierName,
			unit,
			line,
		}
	}
	out.Table(headers, rows)
}

// PrintReport выводит итоговый отчёт.
func PrintReport(out *Output, r *domain.FinalDecisionReport) {
	if out.IsJSON() {
		out.JSON(r)
		return
	}

	w := out.Writer()
	s := r.Summary
	fmt.Fprintf(w, "%s\n\n", r.ExecutiveSummary)

	headers := []string{"MPN", "VERDICT", "SUPPLIER", "QTY", "LINE COST", "RATIONALE"}
	rows := make([][]string, len(r.Verdicts))
	for i, v := range r.Verdicts {
		qty := ""
		if v.Quantity > 0 {
			qty = strconv.Itoa(v.Quantity)
		}
		rows[i] = []string{v.MPN, string(v.Verdict), v.SupplierName, qty, money(v.LineCost), v.Rationale}
	}
	out.Table(headers, rows)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Approved: %d  Rejected: %d  Spend: $%.2f", s.TotalApproved, s.TotalRejected, s.TotalSpend)
	if s.BudgetTotal > 0 {
		fmt.Fprintf(w, " of $%.2f (%.1f%%)", s.BudgetTotal, s.BudgetUtilizationPct)
	}
	fmt.Fprintf(w, "  Risk: %s\n", s.RiskLevel)

	for _, k := range s.KeyRisks {
		fmt.Fprintf(w, "  ! %s\n", k)
	}
	if len(r.FollowUps) > 0 {
		fmt.Fprintln(w, "\nFollow-ups:")
		for _, f := range r.FollowUps {
			fmt.Fprintf(w, "  [%s] %s (%s)\n", f.Priority, f.Action, f.Owner)
		}
	}
}

func money(v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("$%.2f", v)
}
