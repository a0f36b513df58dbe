package main

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/utils"
)

// handleGenerateNarrative generates an intervention narrative for one
// student. A generator failure is isolated to this request: derived data for
// the student and the rest of the cohort stays untouched.
func (s *Server) handleGenerateNarrative(w http.ResponseWriter, r *http.Request) {
	studentID := mux.Vars(r)["id"]

	narrative, err := s.cohort.Narrative(r.Context(), studentID)
	if err != nil {
		var narrativeErr *models.NarrativeError
		if errors.As(err, &narrativeErr) {
			utils.GetLogger().Error("Narrative generation failed", err,
				utils.String("student_id", studentID),
				utils.Component("http"))
			writeErrorResponse(w, http.StatusBadGateway, narrativeErr.Error())
			return
		}
		writeStudentError(w, err)
		return
	}

	writeSuccessResponse(w, map[string]any{
		"student_id": studentID,
		"narrative":  narrative,
	})
}
