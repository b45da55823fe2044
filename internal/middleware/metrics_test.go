package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockHTTPMetrics struct {
	statuses  []int
	latencies []time.Duration
}

func (m *mockHTTPMetrics) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockHTTPMetrics) RecordRequestLatency(duration time.Duration) {
	m.latencies = append(m.latencies, duration)
}

var _ HTTPMetrics = (*mockHTTPMetrics)(nil)

func TestMetricsMiddleware_RecordsStatusAndLatency(t *testing.T) {
	collector := &mockHTTPMetrics{}
	mw := NewMetricsMiddleware(collector)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/posts/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusNotFound {
		t.Errorf("recorded statuses = %v, want [404]", collector.statuses)
	}
	if len(collector.latencies) != 1 {
		t.Fatalf("recorded latencies = %d entries, want 1", len(collector.latencies))
	}
	if collector.latencies[0] < 0 {
		t.Errorf("latency = %v, want non-negative", collector.latencies[0])
	}
}

// TestMetricsMiddleware_DefaultStatus200 はWriteHeader未呼び出しのハンドラーが
// 200として記録されることを検証する。
func TestMetricsMiddleware_DefaultStatus200(t *testing.T) {
	collector := &mockHTTPMetrics{}
	mw := NewMetricsMiddleware(collector)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusOK {
		t.Errorf("recorded statuses = %v, want [200]", collector.statuses)
	}
}
