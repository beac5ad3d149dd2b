package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestLogger(h.logger),
		Recovery(),
		Logging(),
	)

	// Projects
	mux.Handle("POST /api/v1/projects", chain(http.HandlerFunc(h.SubmitProject)))
	mux.Handle("GET /api/v1/projects", chain(http.HandlerFunc(h.ListProjects)))
	mux.Handle("GET /api/v1/projects/{id}", chain(http.HandlerFunc(h.GetProject)))
	mux.Handle("GET /api/v1/projects/{id}/trace", chain(http.HandlerFunc(h.GetProjectTrace)))
	mux.Handle("GET /api/v1/projects/{id}/report", chain(http.HandlerFunc(h.GetProjectReport)))

	// Knowledge
	mux.Handle("GET /api/v1/knowledge/banned", chain(http.HandlerFunc(h.ListBanned)))
	mux.Handle("POST /api/v1/knowledge/banned", chain(http.HandlerFunc(h.BanPart)))
	mux.Handle("DELETE /api/v1/knowledge/banned/{mpn}", chain(http.HandlerFunc(h.UnbanPart)))
	mux.Handle("POST /api/v1/knowledge/alternates", chain(http.HandlerFunc(h.AddAlternate)))
	mux.Handle("GET /api/v1/knowledge/suppliers", chain(http.HandlerFunc(h.ListSuppliers)))
	mux.Handle("PUT /api/v1/knowledge/suppliers/{id}", chain(http.HandlerFunc(h.UpsertSupplier)))
}
