package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/parix-analytics/parix-go/pkg/cohort"
	"github.com/parix-analytics/parix-go/pkg/cohortstore"
	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/utils"
)

// handleHealth returns service health and the current snapshot, if any
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"version":   parixVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if snapshot, err := s.cohort.Snapshot(); err == nil {
		health["snapshot_id"] = snapshot.SnapshotID
		health["cohort_size"] = snapshot.CohortSize
	}
	writeJSONResponse(w, http.StatusOK, health)
}

// handleGetCohort returns the current cohort statistics snapshot
func (s *Server) handleGetCohort(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.cohort.Snapshot()
	if err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeSuccessResponse(w, snapshot)
}

// handleReloadCohort reruns the full pipeline on the source CSV
func (s *Server) handleReloadCohort(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.cohort.Reload(r.Context())
	if err != nil {
		var schemaErr *models.SchemaError
		if errors.As(err, &schemaErr) {
			writeErrorResponse(w, http.StatusUnprocessableEntity, schemaErr.Error())
			return
		}
		utils.GetLogger().Error("Cohort reload failed", err, utils.Component("http"))
		writeInternalServerErrorResponse(w, fmt.Sprintf("cohort reload failed: %v", err))
		return
	}
	writeSuccessResponse(w, snapshot)
}

// handleExportCohort streams the current snapshot's derived rows as CSV
func (s *Server) handleExportCohort(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	snapshot, err := s.cohort.Snapshot()
	if err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=cohort_%s.csv", snapshot.SnapshotID))

	if err := s.store.ExportCSV(w, snapshot.SnapshotID, rowFilterFromQuery(r)); err != nil {
		// Headers are already out; log rather than rewrite the status.
		utils.GetLogger().Error("CSV export failed", err, utils.Component("http"))
	}
}

// handleListStudents returns the derived rows matching the query filters
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.cohort.Rows(rowFilterFromQuery(r))
	if err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	limit := parseLimit(r, len(rows))
	if limit < len(rows) {
		rows = rows[:limit]
	}

	writeSuccessResponse(w, map[string]any{
		"count":    len(rows),
		"students": rows,
	})
}

// handleGetStudent returns one student's raw record and derived features
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	row, err := s.cohort.Row(mux.Vars(r)["id"])
	if err != nil {
		writeStudentError(w, err)
		return
	}
	writeSuccessResponse(w, row)
}

// handleGetStudentPayload returns the strict narrative payload for a student
func (s *Server) handleGetStudentPayload(w http.ResponseWriter, r *http.Request) {
	payload, err := s.cohort.Payload(mux.Vars(r)["id"])
	if err != nil {
		writeStudentError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// rowFilterFromQuery builds a row filter from query parameters
func rowFilterFromQuery(r *http.Request) cohortstore.RowFilter {
	q := r.URL.Query()
	return cohortstore.RowFilter{
		Persona:  models.Persona(q.Get("persona")),
		RiskBand: models.RiskBand(q.Get("risk_band")),
		Lever:    models.Lever(q.Get("lever")),
	}
}

// writeStudentError maps cohort lookup failures to HTTP status codes
func writeStudentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cohort.ErrStudentNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cohort.ErrNoCohort):
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeInternalServerErrorResponse(w, err.Error())
	}
}
