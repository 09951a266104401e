package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/foxzi/equiptrack/internal/auth"
	"github.com/foxzi/equiptrack/internal/ingest"
	"github.com/foxzi/equiptrack/internal/session"
	"github.com/foxzi/equiptrack/internal/settings"
	"github.com/foxzi/equiptrack/internal/tenant"
	"github.com/foxzi/equiptrack/internal/workspace"
)

var errNoSelection = errors.New("no database selected")

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	OpenHandles int    `json:"open_handles"`
}

// MeResponse is the response for GET /api/v1/me
type MeResponse struct {
	*tenant.Tenant
	AuthMethod string         `json:"auth_method"`
	Session    *session.State `json:"session,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     Version,
		Uptime:      time.Since(s.startTime).String(),
		OpenHandles: s.deps.Pool.Len(),
	})
}

// handleMe handles GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)
	state, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil {
		s.writeError(w, r, "load session", err)
		return
	}

	resp := MeResponse{Tenant: t, Session: state}
	if id := auth.FromContext(r.Context()); id != nil {
		resp.AuthMethod = string(id.Method)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// selection is the database and table a request works on
type selection struct {
	tenant *tenant.Tenant
	state  *session.State
	db     *workspace.DB
	name   string
}

// openSelected opens the session's selected database. The ?database= query
// parameter overrides the session for one request.
func (s *Server) openSelected(w http.ResponseWriter, r *http.Request) (*selection, bool) {
	t := tenantFrom(r)
	state, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil {
		s.writeError(w, r, "load session", err)
		return nil, false
	}
	if state == nil {
		state = &session.State{}
	}

	name := state.SelectedDB
	if q := r.URL.Query().Get("database"); q != "" {
		name = q
	}
	if name == "" {
		s.writeError(w, r, "open database", errNoSelection)
		return nil, false
	}

	path, err := s.deps.Resolver.SelectDatabase(r.Context(), t.Email, name)
	if err != nil {
		s.writeError(w, r, "select database", err)
		return nil, false
	}
	name = filepath.Base(path)
	if name != state.SelectedDB {
		// the session's table belongs to another database
		state = &session.State{SelectedDB: name}
	}

	db, err := s.deps.Pool.Open(r.Context(), path)
	if err != nil {
		s.writeError(w, r, "open database", err)
		return nil, false
	}
	return &selection{tenant: t, state: state, db: db, name: name}, true
}

// activeTable returns ?table= or the session's active table
func (s *Server) activeTable(w http.ResponseWriter, r *http.Request, sel *selection) (string, bool) {
	table := r.URL.Query().Get("table")
	if table == "" {
		table = sel.state.ActiveTable
	}
	if table == "" {
		s.sendError(w, http.StatusBadRequest, "no active table selected")
		return "", false
	}
	if err := workspace.ValidateTableName(table); err != nil {
		s.writeError(w, r, "select table", err)
		return "", false
	}
	return table, true
}

// audit appends an entry to the audit log of db. Failures are logged, not
// returned: the mutation has already happened.
func (s *Server) audit(r *http.Request, db *workspace.DB, action, detail string) {
	t := tenantFrom(r)
	if err := db.LogAudit(r.Context(), t.Email, action, detail); err != nil {
		s.logger.Error("failed to write audit entry",
			"action", action,
			"user", t.Email,
			"error", err,
		)
		return
	}
	s.deps.Collector.TrackAudit(action)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, tenant.ErrNotFound),
		errors.Is(err, workspace.ErrNoTable),
		errors.Is(err, workspace.ErrNoDatabase),
		errors.Is(err, workspace.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrExists):
		return http.StatusConflict
	case errors.Is(err, tenant.ErrForbidden),
		errors.Is(err, workspace.ErrReservedTable):
		return http.StatusForbidden
	case errors.Is(err, tenant.ErrInvalidName),
		errors.Is(err, tenant.ErrInvalidEmail),
		errors.Is(err, tenant.ErrInvalidRole),
		errors.Is(err, workspace.ErrInvalidTable),
		errors.Is(err, workspace.ErrNoIDColumn),
		errors.Is(err, workspace.ErrMissingID),
		errors.Is(err, workspace.ErrInvalidInput),
		errors.Is(err, ingest.ErrUnsupported),
		errors.Is(err, ingest.ErrEmpty),
		errors.Is(err, ingest.ErrBadHeader),
		errors.Is(err, settings.ErrInvalidInterval),
		errors.Is(err, settings.ErrMissingKey),
		errors.Is(err, errNoSelection):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err with the mapped status. Server errors are logged and
// their detail is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "op", op, "path", r.URL.Path, "error", err)
		s.sendError(w, status, fmt.Sprintf("Failed to %s", op))
		return
	}
	s.sendError(w, status, err.Error())
}

// decodeJSON decodes the request body into v
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// queryLimit parses ?limit=, returning def when absent
func queryLimit(r *http.Request, def uint64) (uint64, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

// wantsCSV reports whether ?format=csv was requested
func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

// sendCSV writes t as a CSV attachment
func (s *Server) sendCSV(w http.ResponseWriter, filename string, t *workspace.Table) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := workspace.WriteCSV(w, t); err != nil {
		s.logger.Error("failed to write CSV", "file", filename, "error", err)
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
