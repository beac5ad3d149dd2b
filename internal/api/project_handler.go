package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/mq"
	"github.com/shaiso/bomflow/internal/repo"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// maxSubmissionBytes — предел тела подачи.
const maxSubmissionBytes = 8 << 20

// SubmitProject принимает BOM.
// POST /api/v1/projects
//
// Синхронно — 201 с проектом (complete или failed).
// Асинхронно — 202 с submission_id.
func (h *Handler) SubmitProject(w http.ResponseWriter, r *http.Request) {
	var req SubmitProjectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.BOMCSV) == "" {
		BadRequest(w, "bom_csv is required")
		return
	}

	if req.Async {
		h.submitAsync(w, r, req)
		return
	}

	src := flow.Source{Name: req.Name, BOM: strings.NewReader(req.BOMCSV)}
	if req.IntakeYAML != "" {
		src.Intake = strings.NewReader(req.IntakeYAML)
	}

	// Отключение клиента не должно обрывать прогон посреди этапа.
	project, err := h.engine.Run(context.WithoutCancel(r.Context()), src)
	h.metrics.Submission("api", err != nil)
	if err != nil {
		if errors.Is(err, flow.ErrInvalidInput) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, r, err)
		return
	}

	if project.Status == domain.ProjectStatusComplete && h.knowledge != nil {
		if err := h.knowledge.RecordProject(r.Context(), project); err != nil {
			telemetry.FromContext(r.Context()).Warn("failed to record part usage", "project_id", project.ID, "error", err)
		}
	}

	Created(w, project)
}

func (h *Handler) submitAsync(w http.ResponseWriter, r *http.Request, req SubmitProjectRequest) {
	if h.publisher == nil {
		Unavailable(w, "async submissions are not configured")
		return
	}

	id, err := h.publisher.PublishSubmission(r.Context(), mq.SubmissionPayload{
		Name:   req.Name,
		BOM:    req.BOMCSV,
		Intake: req.IntakeYAML,
		Source: "api",
	})
	if err != nil {
		h.metrics.Submission("api", true)
		InternalError(w, r, err)
		return
	}

	telemetry.FromContext(r.Context()).Info("submission queued", "submission_id", id)
	Accepted(w, SubmissionResponse{SubmissionID: id})
}

// ListProjects возвращает краткие сведения о проектах.
// GET /api/v1/projects?status=...&limit=...
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	var filter repo.ListFilter

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.ProjectStatus(status)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	projects, err := h.projects.List(r.Context(), filter)
	if HandleRepoError(w, r, err, "") {
		return
	}
	if projects == nil {
		projects = []repo.ProjectSummary{}
	}

	List(w, projects, len(projects))
}

// GetProject возвращает проект целиком.
// GET /api/v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	Success(w, project)
}

// GetProjectTrace возвращает журнал проекта.
// GET /api/v1/projects/{id}/trace
func (h *Handler) GetProjectTrace(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	Success(w, TraceResponse{
		ProjectID: project.ID,
		Status:    project.Status,
		Steps:     project.Trace,
	})
}

// GetProjectReport возвращает итоговый отчёт.
// GET /api/v1/projects/{id}/report
func (h *Handler) GetProjectReport(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if project.Report == nil {
		NotFound(w, "report not available")
		return
	}
	Success(w, project.Report)
}

func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid project id")
		return nil, false
	}

	project, err := h.projects.Get(r.Context(), id)
	if HandleRepoError(w, r, err, "project not found") {
		return nil, false
	}
	return project, true
}
