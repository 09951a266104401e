package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/equiptrack/internal/predict"
	"github.com/foxzi/equiptrack/internal/workspace"
)

// MaintenanceRequest is the request body for POST /maintenance
type MaintenanceRequest struct {
	EquipmentID string `json:"equipment_id"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Technician  string `json:"technician"`
}

// MaintenanceResponse is the response for POST /maintenance
type MaintenanceResponse struct {
	Record         *workspace.MaintenanceRecord `json:"record"`
	EquipmentTable string                       `json:"equipment_table,omitempty"`
	UpdatedRows    int64                        `json:"updated_rows"`
}

// ScanRequest is the request body for POST /scans
type ScanRequest struct {
	Code     string `json:"code"`
	Location string `json:"location"`
}

// PredictionsResponse is the response for GET /predictions
type PredictionsResponse struct {
	Table       string               `json:"table"`
	Date        string               `json:"date"`
	Summary     map[string]int       `json:"summary"`
	Predictions []predict.Prediction `json:"predictions"`
}

// IntervalsRequest is the request body for PUT /settings/intervals
type IntervalsRequest struct {
	Table     string         `json:"table"`
	Intervals map[string]int `json:"intervals"`
}

// IntervalsResponse is the response for the intervals endpoints
type IntervalsResponse struct {
	Table       string         `json:"table"`
	DefaultDays int            `json:"default_days"`
	Intervals   map[string]int `json:"intervals"`
}

// SearchResponse is the response for GET /search
type SearchResponse struct {
	Query   string                   `json:"query"`
	Results []workspace.SearchResult `json:"results"`
}

// queryDate parses an optional date query parameter
func queryDate(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := predict.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// handleListMaintenance handles GET /api/v1/maintenance
func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
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
	records, err := sel.db.ListMaintenance(r.Context(), workspace.MaintenanceFilter{
		EquipmentID: q.Get("equipment_id"),
		Technician:  q.Get("technician"),
		From:        from,
		To:          to,
		Limit:       limit,
	})
	if err != nil {
		s.writeError(w, r, "list maintenance", err)
		return
	}
	s.sendJSON(w, http.StatusOK, records)
}

// handleAddMaintenance handles POST /api/v1/maintenance. The record is
// stamped onto the active table when one is selected.
func (s *Server) handleAddMaintenance(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	if req.Date == "" {
		req.Date = s.now().Format(predict.DateLayout)
	}
	table := r.URL.Query().Get("table")
	if table == "" {
		table = sel.state.ActiveTable
	}

	rec, updated, err := sel.db.AddMaintenance(r.Context(), table, workspace.MaintenanceRecord{
		EquipmentID: req.EquipmentID,
		Description: req.Description,
		Date:        req.Date,
		Technician:  req.Technician,
	})
	if err != nil {
		s.writeError(w, r, "add maintenance", err)
		return
	}
	s.deps.Collector.TrackMaintenance()
	s.audit(r, sel.db, workspace.ActionAddMaintenance,
		fmt.Sprintf("Maintenance for %s on %s", rec.EquipmentID, rec.Date))

	s.sendJSON(w, http.StatusCreated, MaintenanceResponse{
		Record:         rec,
		EquipmentTable: table,
		UpdatedRows:    updated,
	})
}

// handleListScans handles GET /api/v1/scans
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 100)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	scans, err := sel.db.ListScans(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, "list scans", err)
		return
	}
	s.sendJSON(w, http.StatusOK, scans)
}

// handleRecordScan handles POST /api/v1/scans
func (s *Server) handleRecordScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}

	scan, err := sel.db.RecordScan(r.Context(), req.Code, sel.tenant.Email, req.Location)
	if err != nil {
		s.writeError(w, r, "record scan", err)
		return
	}
	s.deps.Collector.TrackScan()
	s.audit(r, sel.db, workspace.ActionRecordScan, "Scanned "+scan.Code)

	s.sendJSON(w, http.StatusCreated, scan)
}

// handlePredictions handles GET /api/v1/predictions
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	var status predict.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := predict.ParseStatus(raw)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = st
	}

	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	table, ok := s.activeTable(w, r, sel)
	if !ok {
		return
	}

	intervals, err := s.deps.Settings.Table(table)
	if err != nil {
		s.writeError(w, r, "load intervals", err)
		return
	}
	today := s.now()
	preds, err := sel.db.Predict(r.Context(), table, intervals, today, s.predictOptions())
	if err != nil {
		s.writeError(w, r, "predict maintenance", err)
		return
	}

	summary := make(map[string]int, len(predict.Statuses))
	for st, n := range predict.Summarize(preds) {
		summary[string(st)] = n
	}
	s.deps.Collector.TrackPredictions(summary)

	if status != "" {
		preds = predict.FilterByStatus(preds, status)
	}
	if preds == nil {
		preds = []predict.Prediction{}
	}

	if wantsCSV(r) {
		s.sendCSV(w, table+"_predictions.csv", workspace.PredictionsTable(preds))
		return
	}
	s.sendJSON(w, http.StatusOK, PredictionsResponse{
		Table:       table,
		Date:        today.Format(predict.DateLayout),
		Summary:     summary,
		Predictions: preds,
	})
}

// handleGetIntervals handles GET /api/v1/settings/intervals
func (s *Server) handleGetIntervals(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		state, err := s.deps.Sessions.Get(r.Context(), tenantFrom(r).Email)
		if err != nil {
			s.writeError(w, r, "load session", err)
			return
		}
		if state != nil {
			table = state.ActiveTable
		}
	}
	if table == "" {
		s.sendError(w, http.StatusBadRequest, "no active table selected")
		return
	}

	intervals, err := s.deps.Settings.Table(table)
	if err != nil {
		s.writeError(w, r, "load intervals", err)
		return
	}
	s.sendJSON(w, http.StatusOK, IntervalsResponse{
		Table:       table,
		DefaultDays: s.deps.Settings.DefaultDays(),
		Intervals:   intervals,
	})
}

// handlePutIntervals handles PUT /api/v1/settings/intervals
func (s *Server) handlePutIntervals(w http.ResponseWriter, r *http.Request) {
	var req IntervalsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	t := tenantFrom(r)
	state, err := s.deps.Sessions.Get(r.Context(), t.Email)
	if err != nil {
		s.writeError(w, r, "load session", err)
		return
	}
	table := strings.TrimSpace(req.Table)
	if table == "" && state != nil {
		table = state.ActiveTable
	}
	if table == "" {
		s.sendError(w, http.StatusBadRequest, "no active table selected")
		return
	}
	if err := workspace.ValidateTableName(table); err != nil {
		s.writeError(w, r, "update intervals", err)
		return
	}

	intervals, err := s.deps.Settings.Set(table, req.Intervals)
	if err != nil {
		s.writeError(w, r, "update intervals", err)
		return
	}
	s.auditSelected(r, workspace.ActionUpdateSettings, "Updated intervals for "+table)

	s.logger.Info("maintenance intervals updated", "email", t.Email, "table", table, "types", len(req.Intervals))
	s.sendJSON(w, http.StatusOK, IntervalsResponse{
		Table:       table,
		DefaultDays: s.deps.Settings.DefaultDays(),
		Intervals:   intervals,
	})
}

// handleSearch handles GET /api/v1/search?q=term[&tables=a,b]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if strings.TrimSpace(term) == "" {
		s.sendError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	var tables []string
	if raw := r.URL.Query().Get("tables"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				tables = append(tables, name)
			}
		}
	}

	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	results, err := sel.db.Search(r.Context(), term, tables)
	if err != nil {
		s.writeError(w, r, "search", err)
		return
	}
	if results == nil {
		results = []workspace.SearchResult{}
	}
	s.sendJSON(w, http.StatusOK, SearchResponse{Query: term, Results: results})
}

// handleSummary handles GET /api/v1/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.openSelected(w, r)
	if !ok {
		return
	}
	table, ok := s.activeTable(w, r, sel)
	if !ok {
		return
	}
	summary, err := sel.db.Summary(r.Context(), table)
	if err != nil {
		s.writeError(w, r, "summarize table", err)
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}
