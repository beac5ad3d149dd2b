package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/bomflow/internal/domain"
)

const (
	defaultTimeout  = 20 * time.Second
	maxResponseBody = 4 * 1024 * 1024 // 4 MB
)

// Config — настройки HTTP провайдера.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// HTTPProvider — реализация flow.IntelProvider поверх HTTP.
//
// Запрос:
//
//	POST <url>
//	{"mpns": [...], "manufacturers": [...], "project": {"name": ..., "product_type": ...}}
//
// Ответ — JSON domain.MarketIntelReport.
type HTTPProvider struct {
	url    string
	token  string
	client *http.Client
}

// New создаёт провайдера.
func New(cfg Config) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNoEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProvider{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type gatherRequest struct {
	MPNs          []string       `json:"mpns"`
	Manufacturers []string       `json:"manufacturers"`
	Project       projectSummary `json:"project"`
}

type projectSummary struct {
	Name        string   `json:"name,omitempty"`
	ProductType string   `json:"product_type,omitempty"`
	Quantity    int      `json:"quantity,omitempty"`
	Standards   []string `json:"standards,omitempty"`
}

// Gather запрашивает аналитику по деталям батча.
func (p *HTTPProvider) Gather(ctx context.Context, items []domain.LineItem, pctx domain.ProjectContext) (*domain.MarketIntelReport, error) {
	body, err := json.Marshal(gatherRequest{
		MPNs:          nonNil(domain.MPNs(items)),
		Manufacturers: manufacturers(items),
		Project: projectSummary{
			Name:        pctx.Name,
			ProductType: pctx.Requirements.ProductType,
			Quantity:    pctx.Requirements.Quantity,
			Standards:   pctx.Compliance.Standards,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode intel request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("intel request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read intel response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var report domain.MarketIntelReport
	if len(bytes.TrimSpace(data)) == 0 {
		return &report, nil
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}
	return &report, nil
}

func manufacturers(items []domain.LineItem) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, it := range items {
		m := strings.TrimSpace(it.Manufacturer)
		if m == "" || seen[strings.ToLower(m)] {
			continue
		}
		seen[strings.ToLower(m)] = true
		out = append(out, m)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
