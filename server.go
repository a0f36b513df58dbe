package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/mux"

	"github.com/parix-analytics/parix-go/pipelines/AI"
	"github.com/parix-analytics/parix-go/pipelines/Explain"
	features "github.com/parix-analytics/parix-go/pipelines/Features"
	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/cohort"
	"github.com/parix-analytics/parix-go/pkg/cohortstore"
	"github.com/parix-analytics/parix-go/pkg/config"
	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/pkg/scheduler"
	"github.com/parix-analytics/parix-go/utils"
)

// Server represents the PARIX analytics server
type Server struct {
	router    *mux.Router
	config    *config.Config
	cohort    *cohort.Service
	scheduler *scheduler.Service
	store     *cohortstore.SQLiteStore
}

// NewServer creates a new PARIX server from configuration. Model and scaler
// artifacts are loaded once here and stay frozen for the process lifetime.
func NewServer(cfg *config.Config) (*Server, error) {
	utils.InitLogger(cfg.Logging)
	logger := utils.GetLogger()

	model, err := ml.LoadModel(cfg.Artifacts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact: %w", err)
	}
	scaler, err := ml.LoadScaler(cfg.Artifacts.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scaler artifact: %w", err)
	}
	if err := ml.CheckContract(model, scaler, models.FeatureLayout()); err != nil {
		return nil, err
	}

	pipeline, err := features.NewPipeline(model, scaler, cfg.Pipeline, cfg.Perturbations)
	if err != nil {
		return nil, err
	}

	var store *cohortstore.SQLiteStore
	if cfg.Data.DatabasePath != "" {
		store, err = cohortstore.NewSQLiteStore(cfg.Data.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cohort store: %w", err)
		}
		logger.Info("Cohort store opened", utils.String("path", cfg.Data.DatabasePath))
	}

	var narrative cohort.NarrativeGenerator
	client, err := AI.NewLLMClient(AI.LLMClientConfig{
		Provider: AI.LLMProvider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		// Narratives are optional; derived data never depends on them.
		logger.Warn("Narrative generation unavailable", utils.Error(err))
	} else {
		narrative = Explain.NewNarrativeEngine(client,
			time.Duration(cfg.LLM.Timeout)*time.Second, cfg.LLM.MaxRetries)
	}

	cohortService := cohort.NewService(cfg, pipeline, store, narrative)

	s := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		cohort:    cohortService,
		scheduler: scheduler.NewService(cohortService, cfg.Scheduler),
		store:     store,
	}
	s.setupRoutes()

	if err := s.scheduler.Start(); err != nil {
		return nil, err
	}

	return s, nil
}

// LoadInitialCohort runs the first pipeline pass so readers have a snapshot
// before the server starts accepting traffic
func (s *Server) LoadInitialCohort(ctx context.Context) error {
	snapshot, err := s.cohort.Reload(ctx)
	if err != nil {
		return fmt.Errorf("initial cohort load failed: %w", err)
	}
	utils.GetLogger().Info("Initial cohort loaded",
		utils.String("snapshot_id", snapshot.SnapshotID),
		utils.Int("cohort_size", snapshot.CohortSize))
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger := utils.GetLogger()

	shutdownComplete := make(chan struct{})
	go func() {
		defer close(shutdownComplete)

		logger.Info("Stopping scheduler")
		s.scheduler.Stop()

		if s.store != nil {
			logger.Info("Closing cohort store")
			if err := s.store.Close(); err != nil {
				logger.Error("Error closing cohort store", err)
			}
		}
	}()

	select {
	case <-shutdownComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
