package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/bomflow/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ProjectSummary — краткие сведения о проекте.
type ProjectSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
	LineItems   int    `json:"line_items"`
	CreatedAt   string `json:"created_at"`
}

// TraceResponse — журнал проекта.
type TraceResponse struct {
	ProjectID string             `json:"project_id"`
	Status    string             `json:"status"`
	Steps     []domain.TraceStep `json:"steps"`
}

// SubmissionResponse — ответ на асинхронную подачу.
type SubmissionResponse struct {
	SubmissionID string `json:"submission_id"`
}

// --- Request types ---

// SubmitRequest — подача BOM.
type SubmitRequest struct {
	Name       string `json:"name,omitempty"`
	BOMCSV     string `json:"bom_csv"`
	IntakeYAML string `json:"intake_yaml,omitempty"`
	Async      bool   `json:"async,omitempty"`
}

// ListProjectsOpts — параметры фильтрации проектов.
type ListProjectsOpts struct {
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для bomflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
//
// Синхронная подача ждёт окончания конвейера, отсюда длинный таймаут.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Projects ---

// Submit выполняет синхронную подачу.
func (c *Client) Submit(req SubmitRequest) (*domain.Project, error) {
	req.Async = false
	var p domain.Project
	err := c.post("/api/v1/projects", req, &p)
	return &p, err
}

// SubmitAsync ставит подачу в очередь.
func (c *Client) SubmitAsync(req SubmitRequest) (*SubmissionResponse, error) {
	req.Async = true
	var s SubmissionResponse
	err := c.post("/api/v1/projects", req, &s)
	return &s, err
}

// ListProjects возвращает список проектов.
func (c *Client) ListProjects(opts ListProjectsOpts) ([]ProjectSummary, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var projects []ProjectSummary
	err := c.list("/api/v1/projects", params, &projects)
	return projects, err
}

// GetProject возвращает проект по ID.
func (c *Client) GetProject(id string) (*domain.Project, error) {
	var p domain.Project
	err := c.get("/api/v1/projects/"+url.PathEscape(id), &p)
	return &p, err
}

// GetTrace возвращает журнал проекта.
func (c *Client) GetTrace(id string) (*TraceResponse, error) {
	var t TraceResponse
	err := c.get("/api/v1/projects/"+url.PathEscape(id)+"/trace", &t)
	return &t, err
}

// GetReport возвращает итоговый отчёт.
func (c *Client) GetReport(id string) (*domain.FinalDecisionReport, error) {
	var r domain.FinalDecisionReport
	err := c.get("/api/v1/projects/"+url.PathEscape(id)+"/report", &r)
	return &r, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
