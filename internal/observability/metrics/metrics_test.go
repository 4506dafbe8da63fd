package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("method", "LOAD_BALANCING"),
		attribute.String("subscription_id", "456"),
		attribute.String("event_type", "invoice.paid"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "subscription_id" {
			t.Fatalf("expected subscription_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRoutingDecision(context.Background(), "FALLBACK", "LOW")
	m.RecordWebhookEvent(context.Background(), "invoice.paid", "ok")

	var jobs *JobMetrics
	jobs.IncRun("x")
	jobs.IncError("x", errors.New("boom"))
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordDunningEscalation(context.Background(), "suspended")
}

func TestClassifyJobError(t *testing.T) {
	cases := map[string]error{
		JobReasonDeadlineExceeded:     fmt.Errorf("tick: %w", context.DeadlineExceeded),
		JobReasonLockTimeout:          &pgconn.PgError{Code: "55P03"},
		JobReasonSerializationFailure: &pgconn.PgError{Code: "40001"},
		JobReasonUniqueViolation:      &pgconn.PgError{Code: "23505"},
		JobReasonUnknown:              errors.New("boom"),
	}
	for want, err := range cases {
		if got := ClassifyJobError(err); got != want {
			t.Fatalf("classify %v: expected %s, got %s", err, want, got)
		}
	}
}

func TestJobMetricsCountsErrorsByReason(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newJobMetrics(registry, Config{ServiceName: "gymledger", Environment: "test"})

	m.IncRun("recompute_vat")
	m.IncError("recompute_vat", context.DeadlineExceeded)
	m.ObserveDuration("recompute_vat", 20*time.Millisecond)

	labels := map[string]string{"service": "gymledger", "env": "test", "job": "recompute_vat"}
	if got := counterValue(t, registry, "gymledger_job_runs_total", labels); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	labels["reason"] = JobReasonDeadlineExceeded
	if got := counterValue(t, registry, "gymledger_job_errors_total", labels); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestHTTPMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "gymledger", Environment: "test"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	labels := map[string]string{"service": "gymledger", "env": "test", "method": "GET", "route": "/health", "status_code": "200"}
	if got := counterValue(t, registry, "gymledger_http_requests_total", labels); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
