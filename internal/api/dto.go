package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/knowledge"
)

// Project DTOs

// SubmitProjectRequest — подача BOM.
type SubmitProjectRequest struct {
	Name       string `json:"name,omitempty"`
	BOMCSV     string `json:"bom_csv"`
	IntakeYAML string `json:"intake_yaml,omitempty"`

	// Async — поставить в очередь вместо синхронного прогона.
	Async bool `json:"async,omitempty"`
}

// SubmissionResponse — ответ на асинхронную подачу.
type SubmissionResponse struct {
	SubmissionID uuid.UUID `json:"submission_id"`
}

// TraceResponse — журнал проекта.
type TraceResponse struct {
	ProjectID uuid.UUID            `json:"project_id"`
	Status    domain.ProjectStatus `json:"status"`
	Steps     []domain.TraceStep   `json:"steps"`
}

// Knowledge DTOs

// BanPartRequest — запрет детали.
type BanPartRequest struct {
	MPN    string `json:"mpn"`
	Reason string `json:"reason"`
}

// AlternateRequest — одобренная замена.
type AlternateRequest struct {
	MPN       string `json:"mpn"`
	Alternate string `json:"alternate"`
}

// SupplierRequest — создание или обновление поставщика. ID берётся из пути.
type SupplierRequest struct {
	Name        string            `json:"name"`
	TrustLevel  domain.TrustLevel `json:"trust_level"`
	OnTimeRate  float64           `json:"on_time_rate"`
	QualityRate float64           `json:"quality_rate"`
	Notes       string            `json:"notes,omitempty"`
}

// ToDomain конвертирует запрос в domain.Supplier.
func (r SupplierRequest) ToDomain(id string) domain.Supplier {
	return domain.Supplier{
		ID:          id,
		Name:        r.Name,
		TrustLevel:  r.TrustLevel,
		OnTimeRate:  r.OnTimeRate,
		QualityRate: r.QualityRate,
		Notes:       r.Notes,
	}
}

// BannedPartResponse — запрещённая деталь.
type BannedPartResponse struct {
	MPN      string    `json:"mpn"`
	Reason   string    `json:"reason"`
	BannedAt time.Time `json:"banned_at"`
}

// BannedFromKnowledge конвертирует knowledge.BannedPart.
func BannedFromKnowledge(b knowledge.BannedPart) BannedPartResponse {
	return BannedPartResponse{MPN: b.MPN, Reason: b.Reason, BannedAt: b.BannedAt}
}
