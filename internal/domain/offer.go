package domain

// PriceBreak — цена за единицу начиная с MinQty штук.
type PriceBreak struct {
	MinQty    int     `json:"min_qty"`
	UnitPrice float64 `json:"unit_price"`
}

// Offer — предложение поставщика по одному MPN.
type Offer struct {
	MPN           string       `json:"mpn"`
	SupplierID    string       `json:"supplier_id"`
	SupplierName  string       `json:"supplier_name"`
	PriceBreaks   []PriceBreak `json:"price_breaks"`
	MOQ           int          `json:"moq"`
	Stock         int          `json:"stock"`
	LeadTimeDays  int          `json:"lead_time_days"`
	Authorized    bool         `json:"authorized"`
	Broker        bool         `json:"broker"`
	Lifecycle     string       `json:"lifecycle,omitempty"`
	RoHSCompliant bool         `json:"rohs_compliant"`
}

// Значения Lifecycle.
const (
	LifecycleActive   = "active"
	LifecycleNRND     = "nrnd"
	LifecycleObsolete = "obsolete"
)

// UnitPriceAt возвращает цену за единицу для заданного количества.
//
// Берётся ступень с наибольшим MinQty <= qty; если такой нет — первая ступень.
// Без ступеней цена 0.
func (o Offer) UnitPriceAt(qty int) float64 {
	if len(o.PriceBreaks) == 0 {
		return 0
	}
	best := -1
	for i, pb := range o.PriceBreaks {
		if pb.MinQty <= qty && (best < 0 || pb.MinQty > o.PriceBreaks[best].MinQty) {
			best = i
		}
	}
	if best < 0 {
		return o.PriceBreaks[0].UnitPrice
	}
	return o.PriceBreaks[best].UnitPrice
}

// OrderQuantity возвращает количество к заказу с учётом MOQ.
func (o Offer) OrderQuantity(qty int) int {
	if o.MOQ > qty {
		return o.MOQ
	}
	return qty
}

// LineCost возвращает стоимость заказа qty штук с учётом MOQ.
func (o Offer) LineCost(qty int) float64 {
	q := o.OrderQuantity(qty)
	return float64(q) * o.UnitPriceAt(q)
}

// CloneOffers возвращает глубокую копию списка предложений.
func CloneOffers(offers []Offer) []Offer {
	if offers == nil {
		return nil
	}
	out := make([]Offer, len(offers))
	for i, o := range offers {
		if o.PriceBreaks != nil {
			pbs := make([]PriceBreak, len(o.PriceBreaks))
			copy(pbs, o.PriceBreaks)
			o.PriceBreaks = pbs
		}
		out[i] = o
	}
	return out
}

// PartKnowledge — накопленные сведения о детали.
type PartKnowledge struct {
	MPN          string `json:"mpn"`
	TimesUsed    int    `json:"times_used"`
	FailureCount int    `json:"failure_count"`
	Notes        string `json:"notes,omitempty"`
}

// Supplier — сведения о поставщике.
type Supplier struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	TrustLevel  TrustLevel `json:"trust_level"`
	OnTimeRate  float64    `json:"on_time_rate"`
	QualityRate float64    `json:"quality_rate"`
	Notes       string     `json:"notes,omitempty"`
}
