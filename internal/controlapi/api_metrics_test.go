package controlapi_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rafaeljc/daffodil/internal/testsupport"
)

// Metrics live in the global Prometheus registry, so this test runs serially.
func TestMetrics_RecordsRoutePattern(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		method  string
		target  string
		pattern string
		code    int
	}{
		{name: "health", method: http.MethodGet, target: "/health", pattern: "/health", code: http.StatusOK},
		{name: "path parameter", method: http.MethodGet, target: "/api/v1/segments/unknown-id", pattern: "/api/v1/segments/{id}", code: http.StatusNotFound},
		{name: "nested user route", method: http.MethodDelete, target: "/api/v1/users/u42/cache", pattern: "/api/v1/users/{id}/cache", code: http.StatusNoContent},
		{name: "unmatched route", method: http.MethodGet, target: "/nope", pattern: "unmatched", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := map[string]string{"method": tt.method, "path": tt.pattern, "code": strconv.Itoa(tt.code)}

			testsupport.AssertMetricDelta(t, "daffodil_control_plane_http_requests_total", labels, 1, func() {
				rr := httptest.NewRecorder()
				env.api.Router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.target, nil))
				assert.Equal(t, tt.code, rr.Code)
			})

			testsupport.AssertHistogramRecorded(t, "daffodil_control_plane_http_handling_seconds",
				map[string]string{"method": tt.method, "path": tt.pattern})
		})
	}
}
