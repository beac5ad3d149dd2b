package offers

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/bomflow/internal/domain"
)

func TestGenerator_Deterministic(t *testing.T) {
	g := NewGenerator()
	item := domain.NewLineItem([]string{"U1"}, "STM32F103C8T6", 10)

	a, err := g.Offers(context.Background(), item)
	require.NoError(t, err)
	b, err := g.Offers(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NotEmpty(t, a)
	assert.Equal(t, "digikey", a[0].SupplierID, "first distributor always carries the part")
	for _, o := range a {
		assert.Equal(t, "STM32F103C8T6", o.MPN)
		require.Len(t, o.PriceBreaks, 4)
		assert.Greater(t, o.PriceBreaks[0].UnitPrice, 0.0)
		assert.GreaterOrEqual(t, o.PriceBreaks[0].UnitPrice, o.PriceBreaks[3].UnitPrice)
		assert.GreaterOrEqual(t, o.MOQ, 1)
	}
}

func TestGenerator_BrokerFlags(t *testing.T) {
	g := NewGenerator(
		Distributor{ID: "auth", Name: "Auth", Authorized: true, PriceFactor: 1, MinLead: 3, MaxLead: 3},
		Distributor{ID: "brk", Name: "Brk", Broker: true, PriceFactor: 1, MinLead: 1, MaxLead: 1},
	)
	// Второй дистрибьютор пропускается для части MPN; ищем MPN, где он есть.
	var offers []domain.Offer
	for _, mpn := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8"} {
		o, err := g.Offers(context.Background(), domain.NewLineItem(nil, mpn, 1))
		require.NoError(t, err)
		if len(o) == 2 {
			offers = o
			break
		}
	}
	require.Len(t, offers, 2)
	assert.True(t, offers[0].Authorized)
	assert.Equal(t, 3, offers[0].LeadTimeDays)
	assert.True(t, offers[1].Broker)
	assert.False(t, offers[1].Authorized)
}

func TestGenerator_Errors(t *testing.T) {
	g := NewGenerator()
	_, err := g.Offers(context.Background(), domain.LineItem{Quantity: 1})
	require.ErrorIs(t, err, ErrNoMPN)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Offers(ctx, domain.NewLineItem(nil, "X", 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ReplaceAndCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	_, found, err := s.GetOffers(ctx, id, "R1")
	require.NoError(t, err)
	assert.False(t, found)

	in := []domain.Offer{{MPN: "R1", SupplierID: "digikey", PriceBreaks: []domain.PriceBreak{{MinQty: 1, UnitPrice: 0.1}}}}
	require.NoError(t, s.SetOffers(ctx, id, "R1", in))
	in[0].PriceBreaks[0].UnitPrice = 99

	got, found, err := s.GetOffers(ctx, id, "R1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0.1, got[0].PriceBreaks[0].UnitPrice)

	got[0].SupplierID = "mutated"
	again, _, _ := s.GetOffers(ctx, id, "R1")
	assert.Equal(t, "digikey", again[0].SupplierID)

	require.NoError(t, s.SetOffers(ctx, id, "R1", nil))
	got, found, _ = s.GetOffers(ctx, id, "R1")
	assert.True(t, found)
	assert.Empty(t, got)

	_, found, _ = s.GetOffers(ctx, uuid.New(), "R1")
	assert.False(t, found, "projects are isolated")
	assert.Equal(t, 1, s.Count(id))
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	g := NewGenerator()
	id := uuid.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, mpn := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(mpn string) {
			defer wg.Done()
			offers, err := g.Offers(ctx, domain.NewLineItem(nil, mpn, 1))
			assert.NoError(t, err)
			assert.NoError(t, s.SetOffers(ctx, id, mpn, offers))
			_, _, err = s.GetOffers(ctx, id, mpn)
			assert.NoError(t, err)
		}(mpn)
	}
	wg.Wait()
	assert.Equal(t, 4, s.Count(id))
}
