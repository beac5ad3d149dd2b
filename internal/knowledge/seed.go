package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/bomflow/internal/domain"
)

// DefaultSuppliers — стартовый набор поставщиков, совпадающий
// с дистрибьюторами генератора предложений.
func DefaultSuppliers() []domain.Supplier {
	return []domain.Supplier{
		{ID: "digikey", Name: "DigiKey", TrustLevel: domain.TrustHigh, OnTimeRate: 0.98, QualityRate: 0.99},
		{ID: "mouser", Name: "Mouser", TrustLevel: domain.TrustHigh, OnTimeRate: 0.97, QualityRate: 0.99},
		{ID: "arrow", Name: "Arrow", TrustLevel: domain.TrustMedium, OnTimeRate: 0.92, QualityRate: 0.98},
		{ID: "lcsc", Name: "LCSC", TrustLevel: domain.TrustMedium, OnTimeRate: 0.90, QualityRate: 0.95},
		{ID: "chipbroker", Name: "ChipBroker", TrustLevel: domain.TrustLow, OnTimeRate: 0.75, QualityRate: 0.85,
			Notes: "Independent broker; require inspection and traceability documents"},
	}
}

// SeedDefaultSuppliers добавляет отсутствующих поставщиков из DefaultSuppliers.
// Существующие записи не изменяются. Возвращает число добавленных.
func (s *Store) SeedDefaultSuppliers(ctx context.Context) (int, error) {
	added := 0
	now := ts(time.Now())
	for _, sup := range DefaultSuppliers() {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO suppliers(id, name, trust_level, on_time_rate, quality_rate, notes, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, sup.ID, sup.Name, string(sup.TrustLevel), sup.OnTimeRate, sup.QualityRate, sup.Notes, now)
		if err != nil {
			return added, fmt.Errorf("seed supplier %s: %w", sup.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}
