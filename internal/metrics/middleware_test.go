package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRequestMetricsGlobal(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(RequestMetrics(nil))
	r.Get("/api/v1/tables/{table}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tables/equipment", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	counter, err := m.HTTPRequestsTotal.GetMetricWithLabelValues("GET", "/api/v1/tables/{table}", "200")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues() error = %v", err)
	}
	if got := counterValue(t, counter); got != 1 {
		t.Errorf("request counter = %f, want 1", got)
	}
}

func TestRequestMetricsWithCollector(t *testing.T) {
	c := newTestCollector(t, nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	rec := httptest.NewRecorder()
	RequestMetrics(c)(handler).ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/databases", nil))

	if c.shadow.HTTPRequests["POST|/api/v1/databases|409"] != 1 {
		t.Errorf("HTTPRequests shadow = %v", c.shadow.HTTPRequests)
	}
	if c.shadow.HTTPErrors["conflict"] != 1 {
		t.Errorf("HTTPErrors shadow = %v", c.shadow.HTTPErrors)
	}
}

func TestRequestMetricsDisabled(t *testing.T) {
	SetGlobal(nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	RequestMetrics(nil)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRouteLabelFallback(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/databases/plant", "/api/v1/databases/{name}"},
		{"/api/v1/tables/equipment/rows/FL-1", "/api/v1/tables/{table}/rows/{id}"},
		{"/api/v1/admin/users/sam@example.com", "/api/v1/admin/users/{email}"},
		{"/api/v1/scans/550e8400-e29b-41d4-a716-446655440000", "/api/v1/scans/{id}"},
		{"/api/v1/tables/", "/api/v1/tables/"},
		{"/health", "/health"},
	}

	for _, tt := range tests {
		if got := routeLabel(httptest.NewRequest("GET", tt.path, nil)); got != tt.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{500, "server_error"},
		{503, "server_error"},
		{400, "bad_request"},
		{401, "unauthenticated"},
		{403, "forbidden"},
		{404, "not_found"},
		{409, "conflict"},
		{413, "unsupported_upload"},
		{415, "unsupported_upload"},
		{422, "client_error"},
		{200, ""},
		{201, ""},
	}

	for _, tt := range tests {
		if got := errorClass(tt.status); got != tt.want {
			t.Errorf("errorClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
