package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestMetrics records request counts, latency and error classes for the
// API router. Counters go through the collector when one is given so they
// survive restarts, otherwise through the global metrics.
func RequestMetrics(c *Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := Global()
			if c != nil {
				m = c.metrics
			}
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			status := strconv.Itoa(code)
			route := routeLabel(r)

			m.HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())

			class := errorClass(code)
			if c != nil {
				c.TrackHTTPRequest(r.Method, route, status)
				if class != "" {
					c.TrackHTTPError(class)
				}
				return
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			if class != "" {
				m.HTTPErrorsTotal.WithLabelValues(class).Inc()
			}
		})
	}
}

// placeholders maps a collection segment to the label used for the segment
// that follows it
var placeholders = map[string]string{
	"databases": "{name}",
	"tables":    "{table}",
	"rows":      "{id}",
	"users":     "{email}",
}

// routeLabel returns the chi route pattern of r. Requests that never reached
// a route (404s, middleware rejections) have their user-supplied segments
// collapsed so database, table and row names do not become label values.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}

	parts := strings.Split(r.URL.Path, "/")
	for i := 1; i < len(parts); i++ {
		if ph, ok := placeholders[parts[i-1]]; ok && parts[i] != "" {
			parts[i] = ph
			continue
		}
		if uuid.Validate(parts[i]) == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// errorClass names the error category of an HTTP status, or "" for success
func errorClass(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status == http.StatusBadRequest:
		return "bad_request"
	case status == http.StatusUnauthorized:
		return "unauthenticated"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType:
		return "unsupported_upload"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}
