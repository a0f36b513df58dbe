package main

// setupRoutes sets up the HTTP routes with API versioning
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.errorRecoveryMiddleware)
	s.router.Use(APITimeoutMiddleware())

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.versionMiddleware("v1"))

	// Health check (no version)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Cohort-level views
	v1.HandleFunc("/cohort", s.handleGetCohort).Methods("GET")
	v1.HandleFunc("/cohort/reload", s.handleReloadCohort).Methods("POST")
	v1.HandleFunc("/cohort/export", s.handleExportCohort).Methods("GET")

	// Per-student views
	v1.HandleFunc("/students", s.handleListStudents).Methods("GET")
	v1.HandleFunc("/students/{id}", s.handleGetStudent).Methods("GET")
	v1.HandleFunc("/students/{id}/payload", s.handleGetStudentPayload).Methods("GET")
	v1.HandleFunc("/students/{id}/narrative", s.handleGenerateNarrative).Methods("POST")
}
