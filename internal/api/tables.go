package api

import (
	"errors"
	"fmt"
	"maps"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/equiptrack/internal/ingest"
	"github.com/foxzi/equiptrack/internal/workspace"
)

// TablesResponse is the response for GET /tables
type TablesResponse struct {
	Database    string   `json:"database"`
	Tables      []string `json:"tables"`
	ActiveTable string   `json:"active_table,omitempty"`
}

// ImportResponse is the response for PUT /tables/{table}
type ImportResponse struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// RowResponse is the response for PUT /tables/{table}/rows
type RowResponse struct {
	Table    string `json:"table"`
	ID       string `json:"id"`
	Inserted bool   `json:"inserted"`
}

// handleListTables handles GET /api/v1/tables
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	tables, err := sel.db.ListTables(r.Context())
	if err != nil {
		s.writeError(w, r, "list tables", err)
		return
	}
	s.sendJSON(w, http.StatusOK, TablesResponse{
		Database:    sel.name,
		Tables:      tables,
		ActiveTable: sel.state.ActiveTable,
	})
}

// handleGetTable handles GET /api/v1/tables/{table}
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	t, err := sel.db.LoadTable(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, r, "load table", err)
		return
	}
	if wantsCSV(r) {
		s.sendCSV(w, t.Name+".csv", t)
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// readUpload parses a multipart "file" part or the raw body. The raw body's
// format comes from ?filename= or the content type.
func (s *Server) readUpload(r *http.Request) (*ingest.Data, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errors.New("multipart upload has no \"file\" part")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart upload: %w", err)
		}
		defer file.Close()
		return ingest.Parse(header.Filename, file)
	}

	name := r.URL.Query().Get("filename")
	if name == "" {
		switch mediaType {
		case "application/json":
			name = "upload.json"
		case "text/tab-separated-values":
			name = "upload.tsv"
		default:
			name = "upload.csv"
		}
	}
	return ingest.Parse(name, r.Body)
}

// handleImportTable handles PUT /api/v1/tables/{table}
func (s *Server) handleImportTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := workspace.ValidateTableName(table); err != nil {
		s.writeError(w, r, "import table", err)
		return
	}

	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	data, err := s.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		if errors.Is(err, ingest.ErrUnsupported) {
			s.sendError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		s.sendError(w, http.StatusBadRequest, "Failed to parse upload: "+err.Error())
		return
	}

	if err := sel.db.ReplaceTable(r.Context(), table, data.Columns, data.Rows); err != nil {
		s.writeError(w, r, "import table", err)
		return
	}
	s.deps.Collector.TrackImport(len(data.Rows))
	s.audit(r, sel.db, workspace.ActionImportTable, "Imported "+table+" into "+sel.name)

	// The imported table becomes the active one
	sel.state.SelectedDB = sel.name
	sel.state.ActiveTable = table
	if _, err := s.deps.Sessions.Save(r.Context(), sel.tenant.Email, *sel.state); err != nil {
		s.logger.Warn("failed to save session", "email", sel.tenant.Email, "error", err)
	}

	s.logger.Info("table imported",
		"email", sel.tenant.Email,
		"database", sel.name,
		"table", table,
		"rows", len(data.Rows),
	)
	s.sendJSON(w, http.StatusOK, ImportResponse{
		Table:   table,
		Columns: data.Columns,
		Rows:    len(data.Rows),
	})
}

// handleUpsertRow handles PUT /api/v1/tables/{table}/rows
func (s *Server) handleUpsertRow(w http.ResponseWriter, r *http.Request) {
	var row map[string]string
	if !s.decodeJSON(w, r, &row) {
		return
	}

	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	table := chi.URLParam(r, "table")

	inserted, err := sel.db.UpsertRow(r.Context(), table, row)
	if err != nil {
		s.writeError(w, r, "save row", err)
		return
	}

	id := rowID(row)
	s.audit(r, sel.db, workspace.ActionEditRow, "Saved "+id+" in "+table)

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	s.sendJSON(w, status, RowResponse{Table: table, ID: id, Inserted: inserted})
}

// rowID returns the trimmed id value of row
func rowID(row map[string]string) string {
	if col := workspace.IDColumn(slices.Sorted(maps.Keys(row))); col != "" {
		return strings.TrimSpace(row[col])
	}
	return ""
}

// handleDeleteRow handles DELETE /api/v1/tables/{table}/rows/{id}
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	table, id := chi.URLParam(r, "table"), chi.URLParam(r, "id")

	if _, err := sel.db.DeleteRow(r.Context(), table, id); err != nil {
		s.writeError(w, r, "delete row", err)
		return
	}
	s.audit(r, sel.db, workspace.ActionDeleteRow, "Deleted "+strings.TrimSpace(id)+" from "+table)

	w.WriteHeader(http.StatusNoContent)
}
