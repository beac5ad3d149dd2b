package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/knowledge"
	"github.com/shaiso/bomflow/internal/mq"
	"github.com/shaiso/bomflow/internal/repo"
)

// --- fakes ---

// fakeRunner сохраняет проект в MemoryProjectStore и сразу завершает его.
type fakeRunner struct {
	store *repo.MemoryProjectStore
	err   error
	bom   string
}

func (f *fakeRunner) Run(ctx context.Context, src flow.Source) (*domain.Project, error) {
	body, _ := io.ReadAll(src.BOM)
	f.bom = string(body)
	if f.err != nil {
		return nil, f.err
	}
	p := domain.NewProject(src.Name, domain.ProjectContext{}, []domain.LineItem{{MPN: "STM32", Quantity: 10}})
	if err := f.store.Create(ctx, p); err != nil {
		return nil, err
	}
	p.AppendTrace(domain.TraceStep{Stage: domain.StageIntake, Message: "Starting intake"})
	p.MarkComplete()
	return p, f.store.Update(ctx, p)
}

type fakePublisher struct {
	got mq.SubmissionPayload
	id  uuid.UUID
	err error
}

func (f *fakePublisher) PublishSubmission(_ context.Context, p mq.SubmissionPayload) (uuid.UUID, error) {
	f.got = p
	return f.id, f.err
}

type env struct {
	mux       *http.ServeMux
	store     *repo.MemoryProjectStore
	runner    *fakeRunner
	publisher *fakePublisher
	knowledge *knowledge.Store
}

func newEnv(t *testing.T, withPublisher bool) *env {
	t.Helper()
	store := repo.NewMemoryProjectStore()
	kb, err := knowledge.OpenInMemory()
	if err != nil {
		t.Fatalf("open knowledge: %v", err)
	}
	t.Cleanup(func() { kb.Close() })

	e := &env{
		mux:       http.NewServeMux(),
		store:     store,
		runner:    &fakeRunner{store: store},
		knowledge: kb,
	}
	cfg := Config{Engine: e.runner, Projects: store, Knowledge: kb}
	if withPublisher {
		e.publisher = &fakePublisher{id: uuid.New()}
		cfg.Publisher = e.publisher
	}
	NewHandler(cfg).RegisterRoutes(e.mux)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

// --- Project Tests ---

func TestSubmitProject_Sync(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{
		Name:   "Widget",
		BOMCSV: "mpn,quantity\nSTM32,10\n",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	p := decodeData[domain.Project](t, rec)
	if p.Status != domain.ProjectStatusComplete {
		t.Errorf("expected complete, got %s", p.Status)
	}
	if e.runner.bom != "mpn,quantity\nSTM32,10\n" {
		t.Errorf("BOM not passed to engine: %q", e.runner.bom)
	}
}

func TestSubmitProject_InvalidInput(t *testing.T) {
	e := newEnv(t, false)
	e.runner.err = errors.Join(flow.ErrInvalidInput, errors.New("missing mpn column"))

	rec := e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{BOMCSV: "foo,bar\n1,2\n"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitProject_EmptyBOM(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{Name: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitProject_PersistFailure(t *testing.T) {
	e := newEnv(t, false)
	e.runner.err = flow.ErrPersist

	rec := e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{BOMCSV: "mpn,quantity\nA,1\n"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSubmitProject_Async(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{
		Name:       "Widget",
		BOMCSV:     "mpn,quantity\nSTM32,10\n",
		IntakeYAML: "project:\n  name: Widget\n",
		Async:      true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	resp := decodeData[SubmissionResponse](t, rec)
	if resp.SubmissionID != e.publisher.id {
		t.Errorf("expected submission id %s, got %s", e.publisher.id, resp.SubmissionID)
	}
	if e.publisher.got.Source != "api" || e.publisher.got.Intake == "" {
		t.Errorf("unexpected payload: %+v", e.publisher.got)
	}
	if e.runner.bom != "" {
		t.Error("async submission must not run the engine in-process")
	}
}

func TestSubmitProject_AsyncWithoutBroker(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{BOMCSV: "mpn,quantity\nA,1\n", Async: true})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGetProject_TraceAndReport(t *testing.T) {
	e := newEnv(t, false)
	created := decodeData[domain.Project](t, e.do(t, http.MethodPost, "/api/v1/projects",
		SubmitProjectRequest{BOMCSV: "mpn,quantity\nA,1\n"}))

	rec := e.do(t, http.MethodGet, "/api/v1/projects/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+created.ID.String()+"/trace", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	trace := decodeData[TraceResponse](t, rec)
	if len(trace.Steps) != 1 || trace.Steps[0].Seq != 1 {
		t.Errorf("unexpected trace: %+v", trace.Steps)
	}

	// у фейкового проекта нет отчёта
	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+created.ID.String()+"/report", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without report, got %d", rec.Code)
	}
}

func TestGetProject_Report(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	p := domain.NewProject("with report", domain.ProjectContext{}, nil)
	if err := e.store.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Report = domain.NewReport()
	p.Report.Finalize(0)
	if err := e.store.Update(ctx, p); err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, http.MethodGet, "/api/v1/projects/"+p.ID.String()+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetProject_NotFoundAndBadID(t *testing.T) {
	e := newEnv(t, false)

	if rec := e.do(t, http.MethodGet, "/api/v1/projects/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/projects/not-a-uuid", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListProjects(t *testing.T) {
	e := newEnv(t, false)
	for i := 0; i < 3; i++ {
		e.do(t, http.MethodPost, "/api/v1/projects", SubmitProjectRequest{BOMCSV: "mpn,quantity\nA,1\n"})
	}

	rec := e.do(t, http.MethodGet, "/api/v1/projects?status=complete&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decodeData[[]repo.ProjectSummary](t, rec)
	if len(list) != 2 {
		t.Errorf("expected 2 projects, got %d", len(list))
	}

	if rec := e.do(t, http.MethodGet, "/api/v1/projects?limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

// --- Knowledge Tests ---

func TestKnowledge_BanAndUnban(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(t, http.MethodPost, "/api/v1/knowledge/banned", BanPartRequest{MPN: "BAD-123", Reason: "counterfeit risk"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	banned := decodeData[[]BannedPartResponse](t, e.do(t, http.MethodGet, "/api/v1/knowledge/banned", nil))
	if len(banned) != 1 || banned[0].Reason != "counterfeit risk" {
		t.Fatalf("unexpected banned list: %+v", banned)
	}

	if rec := e.do(t, http.MethodDelete, "/api/v1/knowledge/banned/BAD-123", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, "/api/v1/knowledge/banned/BAD-123", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second unban, got %d", rec.Code)
	}
}

func TestKnowledge_BanValidation(t *testing.T) {
	e := newEnv(t, false)

	if rec := e.do(t, http.MethodPost, "/api/v1/knowledge/banned", BanPartRequest{MPN: "X"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing reason: expected 400, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/v1/knowledge/banned", BanPartRequest{Reason: "r"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing mpn: expected 400, got %d", rec.Code)
	}
}

func TestKnowledge_Suppliers(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(t, http.MethodPut, "/api/v1/knowledge/suppliers/acme", SupplierRequest{
		Name:        "ACME Components",
		TrustLevel:  domain.TrustHigh,
		OnTimeRate:  0.97,
		QualityRate: 0.99,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	list := decodeData[[]domain.Supplier](t, e.do(t, http.MethodGet, "/api/v1/knowledge/suppliers", nil))
	if len(list) != 1 || list[0].ID != "acme" {
		t.Fatalf("unexpected suppliers: %+v", list)
	}

	rec = e.do(t, http.MethodPut, "/api/v1/knowledge/suppliers/acme", SupplierRequest{OnTimeRate: 2})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid rates: expected 400, got %d", rec.Code)
	}
}

func TestKnowledge_Alternates(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(t, http.MethodPost, "/api/v1/knowledge/alternates", AlternateRequest{MPN: "A", Alternate: "B"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/v1/knowledge/alternates", AlternateRequest{MPN: "A", Alternate: "a"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self alternate: expected 400, got %d", rec.Code)
	}
}

// --- Middleware Tests ---

func TestRecovery(t *testing.T) {
	h := Chain(RequestLogger(discardLogger()), Recovery())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(ErrCodeInternalError)) {
		t.Errorf("expected error body, got %s", rec.Body)
	}
}

func TestLogging_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slogTo(&buf)

	h := Chain(RequestLogger(logger), Logging())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	h.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), "status=418") {
		t.Errorf("expected status 418 in log, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("expected request_id in log, got %s", buf.String())
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("expected request id echoed, got %q", got)
	}
}

func TestRequestLogger_GeneratesID(t *testing.T) {
	h := RequestLogger(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected generated request id")
	}
}
