package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/equiptrack/internal/auth"
	"github.com/foxzi/equiptrack/internal/tenant"
)

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type tenantKey struct{}

// authMiddleware authenticates the caller and resolves the tenant. Resolving
// creates the user record on first access.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.deps.Auth.Authenticate(r)
		if err != nil {
			reason := "missing"
			switch {
			case r.Header.Get(auth.APIKeyHeader) != "":
				reason = "invalid_api_key"
			case errors.Is(err, auth.ErrInvalidToken):
				reason = "invalid_token"
			}
			s.deps.Collector.TrackAuthFailure(reason)
			s.logger.Warn("unauthorized API request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"reason", reason,
			)
			s.sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		t, err := s.deps.Resolver.Resolve(r.Context(), id.Email)
		if err != nil {
			s.writeError(w, r, "resolve identity", err)
			return
		}
		s.deps.Collector.TrackTenantResolution(t.Created)

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = context.WithValue(ctx, tenantKey{}, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFrom returns the tenant resolved by authMiddleware
func tenantFrom(r *http.Request) *tenant.Tenant {
	t, _ := r.Context().Value(tenantKey{}).(*tenant.Tenant)
	return t
}

// requireWriter rejects guests
func (s *Server) requireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t := tenantFrom(r); t == nil || !t.CanWrite() {
			s.sendError(w, http.StatusForbidden, "Read-only access")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects non-admins
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t := tenantFrom(r); t == nil || !t.IsAdmin() {
			s.sendError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
