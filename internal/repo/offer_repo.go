package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/bomflow/internal/domain"
)

// OfferRepo — Offer Store в PostgreSQL.
type OfferRepo struct {
	pool *pgxpool.Pool
}

// NewOfferRepo создаёт новый OfferRepo.
func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

// GetOffers возвращает предложения; found=false, если MPN не обогащался.
func (r *OfferRepo) GetOffers(ctx context.Context, projectID uuid.UUID, mpn string) ([]domain.Offer, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT offers FROM project_offers WHERE project_id = $1 AND mpn = $2
	`, projectID, mpn).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get offers: %w", err)
	}

	var offers []domain.Offer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, false, fmt.Errorf("decode offers for %s: %w", mpn, err)
	}
	return offers, true, nil
}

// SetOffers заменяет предложения по MPN.
func (r *OfferRepo) SetOffers(ctx context.Context, projectID uuid.UUID, mpn string, offers []domain.Offer) error {
	if offers == nil {
		offers = []domain.Offer{}
	}
	raw, err := json.Marshal(offers)
	if err != nil {
		return fmt.Errorf("encode offers: %w", err)
	}

	query := `
		INSERT INTO project_offers (project_id, mpn, offers, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (project_id, mpn) DO UPDATE SET
			offers = EXCLUDED.offers,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, projectID, mpn, raw); err != nil {
		return fmt.Errorf("set offers: %w", err)
	}
	return nil
}
