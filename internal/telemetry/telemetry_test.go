package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		" WARN ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if LogLevel().String() != "DEBUG" {
		t.Errorf("expected DEBUG, got %s", LogLevel())
	}
	t.Setenv("LOG_LEVEL", "")
	if LogLevel().String() != "INFO" {
		t.Errorf("expected INFO default, got %s", LogLevel())
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := WithProjectID(NewLogger(&buf, "text"), "p-1")
	logger.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "project_id=p-1") {
		t.Errorf("expected project_id attribute, got %q", out)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json")
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected default logger")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("enrich", false, time.Second)
	m.RunFinished("complete", "")
	m.TraceStep("enrich")
	m.ObserveEvaluation("finance", true, time.Second)
	m.Verdict("APPROVED")
	m.Submission("api", false)
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunFinished("failed", "parallel_review")
	m.RunFinished("failed", "parallel_review")
	m.TraceStep("intake")

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("failed", "parallel_review")); got != 2 {
		t.Errorf("expected 2 failed runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.traceSteps.WithLabelValues("intake")); got != 1 {
		t.Errorf("expected 1 trace step, got %v", got)
	}

	// Повторная регистрация в другом реестре не паникует.
	_ = NewMetrics(prometheus.NewRegistry())
}
