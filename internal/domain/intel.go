package domain

import (
	"strings"
	"time"
)

// IntelItem — одна новость или сигнал рынка.
type IntelItem struct {
	Title                string   `json:"title"`
	Summary              string   `json:"summary,omitempty"`
	Source               string   `json:"source,omitempty"`
	RelatedMPNs          []string `json:"related_mpns,omitempty"`
	RelatedManufacturers []string `json:"related_manufacturers,omitempty"`
	Sentiment            string   `json:"sentiment,omitempty"`
	Relevance            float64  `json:"relevance,omitempty"`
}

// MarketIntelReport — результат сбора рыночной аналитики.
type MarketIntelReport struct {
	Items               []IntelItem `json:"items,omitempty"`
	SupplyChainRisks    []string    `json:"supply_chain_risks,omitempty"`
	ShortageAlerts      []string    `json:"shortage_alerts,omitempty"`
	PriceTrends         []string    `json:"price_trends,omitempty"`
	ManufacturerUpdates []string    `json:"manufacturer_updates,omitempty"`
	Recommendations     []string    `json:"recommendations,omitempty"`
	GeneratedAt         time.Time   `json:"generated_at,omitempty"`
}

// IsEmpty возвращает true, если отчёт ничего не содержит.
func (r *MarketIntelReport) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.Items) == 0 &&
		len(r.SupplyChainRisks) == 0 &&
		len(r.ShortageAlerts) == 0 &&
		len(r.PriceTrends) == 0 &&
		len(r.ManufacturerUpdates) == 0 &&
		len(r.Recommendations) == 0
}

// RelevantTo возвращает сигналы, касающиеся детали или её производителя.
//
// Учитываются связанные MPN/производители элементов, а также упоминания
// в текстах shortage alerts и supply chain risks.
func (r *MarketIntelReport) RelevantTo(mpn, manufacturer string) []string {
	if r.IsEmpty() {
		return nil
	}
	var out []string
	for _, it := range r.Items {
		if containsFold(it.RelatedMPNs, mpn) || containsFold(it.RelatedManufacturers, manufacturer) {
			out = append(out, it.Title)
		}
	}
	for _, lines := range [][]string{r.ShortageAlerts, r.SupplyChainRisks} {
		for _, line := range lines {
			if mentions(line, mpn) || mentions(line, manufacturer) {
				out = append(out, line)
			}
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, v := range list {
		if equalFold(v, s) {
			return true
		}
	}
	return false
}

// mentions проверяет вхождение term в text как отдельного слова (без учёта регистра).
func mentions(text, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	text = strings.ToLower(text)
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], term)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(term)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
