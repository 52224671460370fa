package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddlewareLabelsMatchedRoute(t *testing.T) {
	recorder := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/projects/{project_slug}/{$}", func(w http.ResponseWriter, r *http.Request) {
		SetRoute(r.Context(), r.Pattern)
		w.WriteHeader(http.StatusTeapot)
	})
	handler := HTTPMiddleware(recorder, mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v3/projects/docs/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v3/projects/other/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	route := "GET /api/v3/projects/{project_slug}/{$}"
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.requests.WithLabelValues("GET", route, "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.requests.WithLabelValues("GET", UnmatchedRoute, "404")))
}

func TestSetRouteOutsideMiddlewareIsNoop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotPanics(t, func() { SetRoute(req.Context(), "GET /") })
}

func TestOutcomeCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveBuildTrigger("triggered")
	recorder.ObserveBuildTrigger("in_flight")
	recorder.ObserveBuildTrigger("triggered")
	recorder.ObserveImport(" Failed ")
	recorder.ObserveImport("")

	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.buildTriggers.WithLabelValues("triggered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.buildTriggers.WithLabelValues("in_flight")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.imports.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.imports.WithLabelValues("unknown")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("post", "POST /api/v3/projects/{$}", http.StatusCreated, 150*time.Millisecond)

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `docsplatform_http_requests_total{method="POST",route="POST /api/v3/projects/{$}",status="201"} 1`), body)
	assert.Contains(t, body, "docsplatform_http_request_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestSetDefault(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	recorder := New()
	SetDefault(recorder)
	SetDefault(nil)
	require.Same(t, recorder, Default())

	ObserveBuildTrigger("triggered")
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.buildTriggers.WithLabelValues("triggered")))
}
