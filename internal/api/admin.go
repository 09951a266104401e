package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/equiptrack/internal/tenant"
	"github.com/foxzi/equiptrack/internal/workspace"
)

// ClearAuditResponse is the response for DELETE /audit
type ClearAuditResponse struct {
	Deleted int64 `json:"deleted"`
}

// UserResponse describes one user record
type UserResponse struct {
	Email      string      `json:"email"`
	Role       tenant.Role `json:"role"`
	AllowedDBs []string    `json:"allowed_dbs"`
}

// UserRequest is the request body for PUT /admin/users/{email}
type UserRequest struct {
	Role       string   `json:"role"`
	AllowedDBs []string `json:"allowed_dbs"`
}

// handleListAudit handles GET /api/v1/audit
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	since, err := queryDate(r, "from")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	until, err := queryDate(r, "to")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !until.IsZero() {
		// inclusive of the whole day
		until = until.Add(24*time.Hour - time.Second)
	}
	limit, err := queryLimit(r, 0)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	entries, err := sel.db.ListAudit(r.Context(), workspace.AuditFilter{
		User:   q.Get("user"),
		Action: q.Get("action"),
		Since:  since,
		Until:  until,
		Limit:  limit,
	})
	if err != nil {
		s.writeError(w, r, "list audit log", err)
		return
	}

	if wantsCSV(r) {
		s.sendCSV(w, "audit_log.csv", workspace.AuditTable(entries))
		return
	}
	s.sendJSON(w, http.StatusOK, entries)
}

// handleClearAudit handles DELETE /api/v1/audit. The clear itself is the
// first entry of the new log.
func (s *Server) handleClearAudit(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	n, err := sel.db.ClearAudit(r.Context())
	if err != nil {
		s.writeError(w, r, "clear audit log", err)
		return
	}
	s.audit(r, sel.db, workspace.ActionClearAuditLog, "Cleared audit log of "+sel.name)

	s.logger.Info("audit log cleared", "email", sel.tenant.Email, "database", sel.name, "entries", n)
	s.sendJSON(w, http.StatusOK, ClearAuditResponse{Deleted: n})
}

// handleListUsers handles GET /api/v1/admin/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Resolver.Store().ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, "list users", err)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for email, rec := range users {
		resp = append(resp, UserResponse{Email: email, Role: rec.Role, AllowedDBs: rec.AllowedDBs})
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Email < resp[j].Email })

	s.sendJSON(w, http.StatusOK, resp)
}

// handlePutUser handles PUT /api/v1/admin/users/{email}
func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	email := chi.URLParam(r, "email")
	rec, err := s.deps.Resolver.SetUser(r.Context(), email, tenant.UserRecord{
		Role:       tenant.Role(req.Role),
		AllowedDBs: req.AllowedDBs,
	})
	if err != nil {
		s.writeError(w, r, "update user", err)
		return
	}
	normalized, _ := tenant.NormalizeEmail(email)

	s.logger.Info("user updated",
		"admin", tenantFrom(r).Email,
		"email", normalized,
		"role", rec.Role,
		"allowed_dbs", rec.AllowedDBs,
	)
	s.sendJSON(w, http.StatusOK, UserResponse{Email: normalized, Role: rec.Role, AllowedDBs: rec.AllowedDBs})
}
