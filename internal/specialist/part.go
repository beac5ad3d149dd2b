package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
)

// part — уникальный MPN батча с суммарным количеством.
type part struct {
	MPN          string
	Quantity     int
	Manufacturer string
	Description  string
	RefDes       []string
}

// groupParts объединяет строки BOM с одинаковым MPN в порядке первого появления.
// Строки без MPN возвращаются отдельно.
func groupParts(items []domain.LineItem) (parts []part, unnamed []domain.LineItem) {
	index := make(map[string]int, len(items))
	for _, it := range items {
		if it.MPN == "" {
			unnamed = append(unnamed, it)
			continue
		}
		i, ok := index[it.MPN]
		if !ok {
			index[it.MPN] = len(parts)
			parts = append(parts, part{
				MPN:          it.MPN,
				Quantity:     it.Quantity,
				Manufacturer: it.Manufacturer,
				Description:  it.Description,
				RefDes:       append([]string(nil), it.RefDes...),
			})
			continue
		}
		p := &parts[i]
		p.Quantity += it.Quantity
		p.RefDes = append(p.RefDes, it.RefDes...)
		if p.Manufacturer == "" {
			p.Manufacturer = it.Manufacturer
		}
	}
	return parts, unnamed
}

// unnamedLabel описывает строку без MPN для замечания.
func unnamedLabel(it domain.LineItem) string {
	if len(it.RefDes) > 0 {
		return strings.Join(it.RefDes, ",")
	}
	if it.Description != "" {
		return it.Description
	}
	return "unnamed line"
}

// lookupOffers читает предложения; отсутствующий reader означает "нет данных".
func lookupOffers(ctx context.Context, r flow.OfferReader, mpn string) ([]domain.Offer, error) {
	if r == nil {
		return nil, nil
	}
	offers, _, err := r.GetOffers(ctx, mpn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOffers, mpn, err)
	}
	return offers, nil
}

// builder накапливает оценку одного специалиста.
type builder struct {
	a        *domain.Assessment
	blocking int
	warnings int
}

func newBuilder(role domain.Role, parts []part) *builder {
	a := domain.NewEmptyAssessment(role)
	for _, p := range parts {
		a.EvaluatedMPNs = append(a.EvaluatedMPNs, p.MPN)
	}
	return &builder{a: a}
}

func (b *builder) concern(mpn string, sev domain.Severity, format string, args ...any) {
	switch sev {
	case domain.SeverityBlocking:
		b.blocking++
	case domain.SeverityWarning:
		b.warnings++
	}
	b.a.Concerns = append(b.a.Concerns, domain.Concern{
		MPN:      mpn,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (b *builder) recommend(format string, args ...any) {
	b.a.Recommendations = append(b.a.Recommendations, fmt.Sprintf(format, args...))
}

func (b *builder) finding(f domain.PartFinding) {
	b.a.Findings = append(b.a.Findings, f)
}

// facts возвращает текстовое изложение оценки: основа для запроса к модели
// и детерминированный Analysis при её отсутствии.
func (b *builder) facts(headline string) string {
	var sb strings.Builder
	sb.WriteString(headline)
	for _, f := range b.a.Findings {
		fmt.Fprintf(&sb, "\n- %s: %s", f.MPN, f.Summary)
	}
	for _, c := range b.a.Concerns {
		if c.MPN == "" {
			fmt.Fprintf(&sb, "\n- [%s] %s", c.Severity, c.Message)
		}
	}
	return sb.String()
}
