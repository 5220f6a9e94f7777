package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"llamaworker/pkg/types"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	return mrr.Body.Bytes()
}

// TestMetricsMiddleware_UsesRoutePattern ensures the metrics middleware labels
// by the chi route pattern instead of the raw URL path.
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/items/{id}", http.MethodGet, "418"))
	if got < 1 {
		t.Fatalf("expected a sample labelled with the route pattern, got %v", got)
	}
	if body := scrape(t); !bytes.Contains(body, []byte("llamaworker_http_requests_total")) {
		t.Fatalf("metric family missing from /metrics")
	}
}

func TestMetricsMiddleware_FallsBackToPath(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/plain", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/plain", http.MethodGet, "200")); got < 1 {
		t.Fatalf("expected /plain sample, got %v", got)
	}
}

func TestStreamedEventsCounted(t *testing.T) {
	before := testutil.ToFloat64(streamedEventsTotal.WithLabelValues(string(types.ActionWriteResult)))
	svc := &mockService{events: []types.Event{
		{Event: types.ActionWriteResult, Text: "a "},
		{Event: types.ActionWriteResult, Text: "b"},
		{Event: types.ActionRunCompleted},
	}}
	if rec := postJSON(NewMux(svc), "/run", `{"prompt":"hi"}`); rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	after := testutil.ToFloat64(streamedEventsTotal.WithLabelValues(string(types.ActionWriteResult)))
	if after-before != 2 {
		t.Fatalf("expected 2 streamed chunks, got %v", after-before)
	}
}

func TestMetricsUnmatchedPathsShareOneSeries(t *testing.T) {
	mux := NewMux(&mockService{})
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(unmatchedRoute, http.MethodGet, "404"))
	for _, p := range []string{"/nope/1", "/nope/2", "/wp-admin.php"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, p, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: status=%d", p, rr.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(unmatchedRoute, http.MethodGet, "404"))
	if after-before != 3 {
		t.Fatalf("expected 3 unmatched samples, got %v", after-before)
	}
	if body := scrape(t); bytes.Contains(body, []byte("/nope/")) || bytes.Contains(body, []byte("wp-admin")) {
		t.Fatalf("raw paths leaked into metric labels")
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight=%v after requests finished", got)
	}
}
