package cohort

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/parix-analytics/parix-go/pipelines/Explain"
	features "github.com/parix-analytics/parix-go/pipelines/Features"
	Input "github.com/parix-analytics/parix-go/pipelines/Input"
	"github.com/parix-analytics/parix-go/pkg/cohortstore"
	"github.com/parix-analytics/parix-go/pkg/config"
	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/utils"
)

// Sentinel errors callers can branch on.
var (
	ErrNoCohort        = errors.New("no cohort loaded yet")
	ErrStudentNotFound = errors.New("student not found")
)

// NarrativeGenerator produces a teacher-facing narrative from a payload
type NarrativeGenerator interface {
	Generate(ctx context.Context, studentID string, payload *Explain.NarrativePayload) (string, error)
}

// Service owns the current cohort snapshot. A reload runs the full pipeline
// on the source CSV and swaps the snapshot atomically: readers always see
// either the old complete state or the new complete state, never a mix.
type Service struct {
	loader    *Input.CohortLoader
	pipeline  *features.Pipeline
	builder   *Explain.PayloadBuilder
	narrative NarrativeGenerator
	store     *cohortstore.SQLiteStore
	csvPath   string
	logger    *utils.Logger

	mu       sync.RWMutex
	snapshot *models.CohortStatistics
	rows     []models.StudentRow
	byID     map[string]int
}

// NewService creates a cohort service. store and narrative may be nil when
// persistence or narrative generation is disabled.
func NewService(cfg *config.Config, pipeline *features.Pipeline, store *cohortstore.SQLiteStore, narrative NarrativeGenerator) *Service {
	return &Service{
		loader:    Input.NewCohortLoader(),
		pipeline:  pipeline,
		builder:   Explain.NewPayloadBuilder(cfg.Pipeline.RiskLevelHighGap, cfg.Pipeline.RiskLevelMediumGap),
		narrative: narrative,
		store:     store,
		csvPath:   cfg.Data.CohortCSVPath,
		logger:    utils.GetLogger(),
	}
}

// Reload loads the cohort CSV, reruns the pipeline, persists the result and
// swaps it in. On any failure the previous snapshot stays in place.
func (s *Service) Reload(ctx context.Context) (*models.CohortStatistics, error) {
	cohort, err := s.loader.LoadFile(s.csvPath)
	if err != nil {
		return nil, err
	}

	result, err := s.pipeline.Run(ctx, cohort)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveSnapshot(result.Snapshot, result.Rows); err != nil {
			return nil, fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}

	byID := make(map[string]int, len(result.Rows))
	for i, row := range result.Rows {
		byID[row.Record.StudentID] = i
	}

	s.mu.Lock()
	s.snapshot = result.Snapshot
	s.rows = result.Rows
	s.byID = byID
	s.mu.Unlock()

	s.logger.Info("Cohort snapshot swapped in",
		utils.String("snapshot_id", result.Snapshot.SnapshotID),
		utils.Int("cohort_size", result.Snapshot.CohortSize))

	return result.Snapshot, nil
}

// Snapshot returns the current cohort statistics, or an error before the
// first successful load
func (s *Service) Snapshot() (*models.CohortStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, ErrNoCohort
	}
	return s.snapshot, nil
}

// Rows returns the current derived rows matching the filter, sorted
// most-at-risk first: lowest gap z-score leads, with the raw gap breaking
// ties (and carrying the ordering when zero variance collapses every z to 0).
func (s *Service) Rows(filter cohortstore.RowFilter) ([]models.StudentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, ErrNoCohort
	}

	out := make([]models.StudentRow, 0, len(s.rows))
	for _, row := range s.rows {
		if filter.Persona != "" && row.Derived.Persona != filter.Persona {
			continue
		}
		if filter.RiskBand != "" && row.Derived.RiskBand != filter.RiskBand {
			continue
		}
		if filter.Lever != "" && row.Derived.PrimaryLever != filter.Lever {
			continue
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Derived, out[j].Derived
		if a.EffortOutcomeGapZ != b.EffortOutcomeGapZ {
			return a.EffortOutcomeGapZ < b.EffortOutcomeGapZ
		}
		return a.EffortOutcomeGap < b.EffortOutcomeGap
	})
	return out, nil
}

// Row returns one student's derived row
func (s *Service) Row(studentID string) (models.StudentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return models.StudentRow{}, ErrNoCohort
	}
	idx, ok := s.byID[studentID]
	if !ok {
		return models.StudentRow{}, fmt.Errorf("%w: %s", ErrStudentNotFound, studentID)
	}
	return s.rows[idx], nil
}

// Payload builds the strict narrative payload for one student
func (s *Service) Payload(studentID string) (*Explain.NarrativePayload, error) {
	row, err := s.Row(studentID)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(row), nil
}

// Narrative generates an intervention narrative for one student. Failures
// are isolated: the student's derived data stays valid and other students
// are unaffected.
func (s *Service) Narrative(ctx context.Context, studentID string) (string, error) {
	if s.narrative == nil {
		return "", fmt.Errorf("narrative generation is not configured")
	}
	payload, err := s.Payload(studentID)
	if err != nil {
		return "", err
	}
	return s.narrative.Generate(ctx, studentID, payload)
}

// Store exposes the persistence layer for export handlers. Nil when
// persistence is disabled.
func (s *Service) Store() *cohortstore.SQLiteStore {
	return s.store
}
