package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// ListBanned возвращает запрещённые детали.
// GET /api/v1/knowledge/banned
func (h *Handler) ListBanned(w http.ResponseWriter, r *http.Request) {
	banned, err := h.knowledge.ListBanned(r.Context())
	if HandleRepoError(w, r, err, "") {
		return
	}

	result := make([]BannedPartResponse, len(banned))
	for i, b := range banned {
		result[i] = BannedFromKnowledge(b)
	}
	List(w, result, len(result))
}

// BanPart запрещает деталь.
// POST /api/v1/knowledge/banned
func (h *Handler) BanPart(w http.ResponseWriter, r *http.Request) {
	var req BanPartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	req.MPN = strings.TrimSpace(req.MPN)
	if req.MPN == "" {
		BadRequest(w, "mpn is required")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		BadRequest(w, "reason is required")
		return
	}

	if err := h.knowledge.BanPart(r.Context(), req.MPN, req.Reason); HandleRepoError(w, r, err, "") {
		return
	}

	telemetry.FromContext(r.Context()).Info("part banned", "mpn", req.MPN)
	Created(w, req)
}

// UnbanPart снимает запрет.
// DELETE /api/v1/knowledge/banned/{mpn}
func (h *Handler) UnbanPart(w http.ResponseWriter, r *http.Request) {
	mpn := r.PathValue("mpn")
	err := h.knowledge.UnbanPart(r.Context(), mpn)
	if HandleRepoError(w, r, err, "part is not banned") {
		return
	}

	telemetry.FromContext(r.Context()).Info("part unbanned", "mpn", mpn)
	NoContent(w)
}

// AddAlternate регистрирует одобренную замену.
// POST /api/v1/knowledge/alternates
func (h *Handler) AddAlternate(w http.ResponseWriter, r *http.Request) {
	var req AlternateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.MPN) == "" || strings.TrimSpace(req.Alternate) == "" {
		BadRequest(w, "mpn and alternate are required")
		return
	}

	if err := h.knowledge.AddAlternate(r.Context(), req.MPN, req.Alternate); HandleRepoError(w, r, err, "") {
		return
	}
	Created(w, req)
}

// ListSuppliers возвращает справочник поставщиков.
// GET /api/v1/knowledge/suppliers
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.knowledge.ListSuppliers(r.Context())
	if HandleRepoError(w, r, err, "") {
		return
	}
	if suppliers == nil {
		suppliers = []domain.Supplier{}
	}
	List(w, suppliers, len(suppliers))
}

// UpsertSupplier создаёт или обновляет поставщика.
// PUT /api/v1/knowledge/suppliers/{id}
func (h *Handler) UpsertSupplier(w http.ResponseWriter, r *http.Request) {
	var req SupplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sup := req.ToDomain(r.PathValue("id"))
	if err := h.knowledge.UpsertSupplier(r.Context(), sup); HandleRepoError(w, r, err, "") {
		return
	}
	Success(w, sup)
}
