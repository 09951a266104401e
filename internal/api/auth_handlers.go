package api

import (
	"net/http"
	"time"

	"github.com/foxzi/equiptrack/internal/auth"
)

// LoginResponse is the response of a completed OIDC login
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
}

// handleLogin handles GET /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := s.deps.OIDC.AuthCodeURL()
	if err != nil {
		s.logger.Error("failed to start OIDC login", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to start login")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback handles GET /auth/callback
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if msg := r.URL.Query().Get("error"); msg != "" {
		s.deps.Collector.TrackAuthFailure("oidc_denied")
		s.sendError(w, http.StatusUnauthorized, "Login failed: "+msg)
		return
	}

	tokens := s.deps.Auth.Tokens()
	if tokens == nil {
		s.sendError(w, http.StatusInternalServerError, "Session tokens are not configured")
		return
	}

	info, err := s.deps.OIDC.Exchange(r.Context(), r.URL.Query().Get("state"), r.URL.Query().Get("code"))
	if err != nil {
		s.deps.Collector.TrackAuthFailure("oidc")
		s.logger.Warn("OIDC login failed", "remote_addr", r.RemoteAddr, "error", err)
		s.sendError(w, http.StatusUnauthorized, "Login failed")
		return
	}

	t, err := s.deps.Resolver.Resolve(r.Context(), info.Email)
	if err != nil {
		s.writeError(w, r, "resolve identity", err)
		return
	}
	s.deps.Collector.TrackTenantResolution(t.Created)

	token, expires, err := tokens.Issue(t.Email)
	if err != nil {
		s.logger.Error("failed to issue session token", "email", t.Email, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to issue session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("user logged in", "email", t.Email, "name", info.Name, "created", t.Created)
	s.sendJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires, Email: t.Email})
}

// handleLogout handles POST /auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
