package offers

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	"github.com/shaiso/bomflow/internal/domain"
)

// ErrNoMPN — у позиции нет MPN, предложения подобрать нельзя.
var ErrNoMPN = errors.New("line item has no MPN")

// Distributor — дистрибьютор, для которого синтезируются предложения.
type Distributor struct {
	ID         string
	Name       string
	Authorized bool
	Broker     bool

	// PriceFactor — множитель к базовой цене детали.
	PriceFactor float64

	// MinLead / MaxLead — диапазон срока поставки в днях.
	MinLead int
	MaxLead int
}

// DefaultDistributors — фиксированный список: четыре авторизованных
// дистрибьютора и один брокер.
func DefaultDistributors() []Distributor {
	return []Distributor{
		{ID: "digikey", Name: "DigiKey", Authorized: true, PriceFactor: 1.00, MinLead: 1, MaxLead: 7},
		{ID: "mouser", Name: "Mouser", Authorized: true, PriceFactor: 0.98, MinLead: 1, MaxLead: 10},
		{ID: "arrow", Name: "Arrow", Authorized: true, PriceFactor: 0.95, MinLead: 5, MaxLead: 35},
		{ID: "lcsc", Name: "LCSC", Authorized: true, PriceFactor: 0.70, MinLead: 7, MaxLead: 21},
		{ID: "chipbroker", Name: "ChipBroker", Broker: true, PriceFactor: 1.40, MinLead: 2, MaxLead: 14},
	}
}

// Generator синтезирует предложения детерминированно по MPN.
//
// Одинаковый MPN всегда даёт одинаковые предложения, поэтому повторный
// enrich не меняет Offer Store.
type Generator struct {
	distributors []Distributor
}

// NewGenerator создаёт генератор. Пустой список означает DefaultDistributors.
func NewGenerator(distributors ...Distributor) *Generator {
	if len(distributors) == 0 {
		distributors = DefaultDistributors()
	}
	return &Generator{distributors: distributors}
}

// Offers возвращает предложения для позиции.
func (g *Generator) Offers(ctx context.Context, item domain.LineItem) ([]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item.MPN == "" {
		return nil, ErrNoMPN
	}

	part := hash(item.MPN)
	base := 0.01 + float64(part%50000)/1000
	lifecycle := domain.LifecycleActive
	switch {
	case part%53 == 0:
		lifecycle = domain.LifecycleObsolete
	case part%20 == 0:
		lifecycle = domain.LifecycleNRND
	}
	rohs := part%17 != 0

	var out []domain.Offer
	for i, d := range g.distributors {
		h := hash(item.MPN + "|" + d.ID)
		// Первый дистрибьютор ведёт любую деталь.
		if i > 0 && h%4 == 0 {
			continue
		}

		price := base * d.PriceFactor * (0.95 + float64(h%11)/100)
		stock := int(h % 25000)
		if h%9 == 0 {
			stock = 0
		}
		moq := 1
		switch h % 6 {
		case 0:
			moq = 10
		case 1:
			moq = 100
		}
		lead := d.MinLead
		if span := d.MaxLead - d.MinLead; span > 0 {
			lead += int(h % uint64(span+1))
		}

		out = append(out, domain.Offer{
			MPN:          item.MPN,
			SupplierID:   d.ID,
			SupplierName: d.Name,
			PriceBreaks: []domain.PriceBreak{
				{MinQty: 1, UnitPrice: round4(price)},
				{MinQty: 10, UnitPrice: round4(price * 0.90)},
				{MinQty: 100, UnitPrice: round4(price * 0.75)},
				{MinQty: 1000, UnitPrice: round4(price * 0.60)},
			},
			MOQ:           moq,
			Stock:         stock,
			LeadTimeDays:  lead,
			Authorized:    d.Authorized,
			Broker:        d.Broker,
			Lifecycle:     lifecycle,
			RoHSCompliant: rohs,
		})
	}
	return out, nil
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
