package api

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/equiptrack/internal/session"
	"github.com/foxzi/equiptrack/internal/tenant"
	"github.com/foxzi/equiptrack/internal/workspace"
)

// DatabaseRequest is the request body for POST and PATCH /databases
type DatabaseRequest struct {
	Name string `json:"name"`
}

// DatabasesResponse is the response for GET /databases
type DatabasesResponse struct {
	Databases []string `json:"databases"`
	Selected  string   `json:"selected,omitempty"`
}

// SessionRequest is the request body for PUT /session
type SessionRequest struct {
	Database string `json:"database"`
	Table    string `json:"table"`
}

// onDatabaseRemoved closes pooled handles and clears session selections
// before a database file is deleted or renamed away
func (s *Server) onDatabaseRemoved(email, name, path string) {
	s.deps.Pool.Evict(path)
	if _, err := s.deps.Sessions.ClearDatabase(context.Background(), email, name); err != nil {
		s.logger.Warn("failed to clear session selection", "email", email, "database", name, "error", err)
	}
}

// auditSelected writes an audit entry to the caller's selected database,
// if any. Used for operations that have no database of their own left.
func (s *Server) auditSelected(r *http.Request, action, detail string) {
	t := tenantFrom(r)
	state, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil || state == nil || state.SelectedDB == "" {
		return
	}
	path, err := s.deps.Resolver.SelectDatabase(r.Context(), t.Email, state.SelectedDB)
	if err != nil {
		return
	}
	db, err := s.deps.Pool.Open(r.Context(), path)
	if err != nil {
		return
	}
	s.audit(r, db, action, detail)
}

// handleListDatabases handles GET /api/v1/databases
func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)
	resp := DatabasesResponse{Databases: t.Databases}
	if state, err := s.deps.Sessions.Get(r.Context(), t.Email); err == nil && state != nil {
		resp.Selected = state.SelectedDB
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleCreateDatabase handles POST /api/v1/databases
func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req DatabaseRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	t := tenantFrom(r)
	name, err := s.deps.Resolver.CreateDatabase(r.Context(), t.Email, req.Name)
	if err != nil {
		s.writeError(w, r, "create database", err)
		return
	}
	s.deps.Collector.TrackDatabaseOp("create")

	db, err := s.deps.Pool.Open(r.Context(), t.Path(name))
	if err != nil {
		s.writeError(w, r, "open database", err)
		return
	}
	s.audit(r, db, workspace.ActionCreateDB, "Created "+name)

	s.sendJSON(w, http.StatusCreated, DatabaseRequest{Name: name})
}

// handleDeleteDatabase handles DELETE /api/v1/databases/{name}
func (s *Server) handleDeleteDatabase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t := tenantFrom(r)

	if err := s.deps.Resolver.DeleteDatabase(r.Context(), t.Email, name); err != nil {
		s.writeError(w, r, "delete database", err)
		return
	}
	s.deps.Collector.TrackDatabaseOp("delete")
	s.auditSelected(r, workspace.ActionDeleteDB, "Deleted "+name)

	w.WriteHeader(http.StatusNoContent)
}

// handleRenameDatabase handles PATCH /api/v1/databases/{name}
func (s *Server) handleRenameDatabase(w http.ResponseWriter, r *http.Request) {
	oldName := chi.URLParam(r, "name")
	var req DatabaseRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	t := tenantFrom(r)
	before, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil {
		s.writeError(w, r, "load session", err)
		return
	}

	newName, err := s.deps.Resolver.RenameDatabase(r.Context(), t.Email, oldName, req.Name)
	if err != nil {
		s.writeError(w, r, "rename database", err)
		return
	}
	s.deps.Collector.TrackDatabaseOp("rename")

	// Keep the selection on the renamed file
	if prev, err := tenant.NormalizeDatabaseName(oldName); err == nil && before != nil && before.SelectedDB == prev {
		before.SelectedDB = newName
		if _, err := s.deps.Sessions.Save(r.Context(), t.Email, *before); err != nil {
			s.logger.Warn("failed to move session selection", "email", t.Email, "error", err)
		}
	}

	db, err := s.deps.Pool.Open(r.Context(), t.Path(newName))
	if err != nil {
		s.writeError(w, r, "open database", err)
		return
	}
	s.audit(r, db, workspace.ActionRenameDB, "Renamed "+oldName+" to "+newName)

	s.sendJSON(w, http.StatusOK, DatabaseRequest{Name: newName})
}

// handleGetSession handles GET /api/v1/session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)
	state, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil {
		s.writeError(w, r, "load session", err)
		return
	}
	if state == nil {
		state = &session.State{}
	}
	s.sendJSON(w, http.StatusOK, state)
}

// handlePutSession handles PUT /api/v1/session
func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	t := tenantFrom(r)
	state, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil {
		s.writeError(w, r, "load session", err)
		return
	}
	if state == nil {
		state = &session.State{}
	}

	if req.Database != "" {
		path, err := s.deps.Resolver.SelectDatabase(r.Context(), t.Email, req.Database)
		if err != nil {
			s.writeError(w, r, "select database", err)
			return
		}
		name := filepath.Base(path)
		if name != state.SelectedDB {
			state.SelectedDB = name
			state.ActiveTable = ""
		}
	}

	if req.Table != "" {
		if state.SelectedDB == "" {
			s.writeError(w, r, "select table", errNoSelection)
			return
		}
		if err := workspace.ValidateTableName(req.Table); err != nil {
			s.writeError(w, r, "select table", err)
			return
		}
		state.ActiveTable = req.Table
	}

	saved, err := s.deps.Sessions.Save(r.Context(), t.Email, *state)
	if err != nil {
		s.writeError(w, r, "save session", err)
		return
	}
	s.sendJSON(w, http.StatusOK, saved)
}
