package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, "smartflow_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestObserveTransition(t *testing.T) {
	m := NewMetrics()
	m.ObserveTransition("access_request", "APPROVE", "ok")
	m.ObserveTransition("access_request", "REJECT", "conflict")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "smartflow_workflow_transitions_total"))
	require.Contains(t, body, `action="APPROVE"`)
	require.Contains(t, body, `outcome="conflict"`)

	// Nil receiver is a no-op, not a panic.
	var none *Metrics
	none.ObserveTransition("ticket", "ASSIGN", "ok")
}
