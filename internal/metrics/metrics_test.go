package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(func() int { return 3 })
	m.RunsStartedTotal.WithLabelValues("nike").Inc()
	m.RunsCompletedTotal.WithLabelValues("nike").Inc()
	m.DispatchFailedTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`receiptor_runs_started_total{template="nike"} 1`,
		`receiptor_runs_completed_total{template="nike"} 1`,
		`receiptor_dispatch_failed_total 1`,
		`receiptor_sessions_active 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := New(func() int { return 0 })

	r := chi.NewRouter()
	r.Use(m.HTTPMiddleware)
	r.Get("/api/v1/wizard/{userID}/stage", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wizard/u1/stage", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/wizard/u2/stage", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `receiptor_http_requests_total{method="GET",path="/api/v1/wizard/{userID}/stage",status="200"} 2`) {
		t.Errorf("route pattern label missing or wrong:\n%s", body)
	}
	if strings.Contains(body, "/wizard/u1/") {
		t.Error("raw path leaked into metric labels")
	}
}
