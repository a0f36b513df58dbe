package features

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/parix-analytics/parix-go/pkg/config"
	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/utils"
)

// PipelineResult is the complete output of one cohort run: the per-student
// rows plus the frozen batch statistics snapshot they were derived under.
type PipelineResult struct {
	Snapshot *models.CohortStatistics
	Rows     []models.StudentRow
}

// Pipeline runs the full derivation over a cohort. The run is two-phase:
// a batch phase computing cohort-wide statistics (residual mean/std,
// cluster centroids), then a per-student phase that reads those frozen
// statistics in parallel. The batch phase is a hard ordering barrier.
type Pipeline struct {
	scorer     *RiskScorer
	indexer    *ResourceIndexer
	classifier *PersonaClassifier
	selector   *LeverSelector
	simulator  *InterventionSimulator
	cfg        config.PipelineConfig
	logger     *utils.Logger
}

// NewPipeline wires a pipeline from the frozen model artifacts and config
func NewPipeline(model ml.Model, scaler ml.FeatureScaler, cfg config.PipelineConfig, perturbations []config.PerturbationRule) (*Pipeline, error) {
	layout := models.FeatureLayout()

	scorer, err := NewRiskScorer(model, scaler, layout)
	if err != nil {
		return nil, err
	}
	simulator, err := NewInterventionSimulator(model, scaler, layout, perturbations)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		scorer:     scorer,
		indexer:    NewResourceIndexer(),
		classifier: NewPersonaClassifier(cfg.ClusterCount, cfg.ClusterSeed),
		selector:   NewLeverSelector(),
		simulator:  simulator,
		cfg:        cfg,
		logger:     utils.GetLogger(),
	}, nil
}

// Run derives features for the whole cohort. The returned snapshot and rows
// form a consistent unit; callers swap them in atomically.
func (p *Pipeline) Run(ctx context.Context, cohort []*models.StudentRecord) (*PipelineResult, error) {
	if len(cohort) == 0 {
		return nil, fmt.Errorf("empty cohort")
	}
	started := time.Now()

	// Batch phase.
	scores, gapStats, err := p.scorer.ScoreCohort(cohort)
	if err != nil {
		return nil, fmt.Errorf("risk scoring failed: %w", err)
	}

	gaps := make([]float64, len(cohort))
	resourceIndexes := make([]float64, len(cohort))
	for i := range cohort {
		gaps[i] = scores[i].Gap
		resourceIndexes[i] = p.indexer.Index(cohort[i])
	}

	personaResult, err := p.classifier.Classify(cohort, gaps, resourceIndexes)
	if err != nil {
		return nil, fmt.Errorf("persona classification failed: %w", err)
	}
	if personaResult.Degenerate {
		p.logger.Warn("Cohort too small or uniform for clustering, all students fall back to Balanced Performer",
			utils.Int("cohort_size", len(cohort)))
	}

	snapshot := &models.CohortStatistics{
		SnapshotID:      uuid.NewString(),
		ComputedAt:      time.Now().UTC(),
		CohortSize:      len(cohort),
		GapMean:         gapStats.Mean,
		GapStdDev:       gapStats.StdDev,
		Centroids:       personaResult.Centroids,
		ClusterFeatures: ClusterFeatureNames(),
		ClusterPersonas: personaResult.ClusterPersonas,
		PersonaCounts:   make(map[models.Persona]int),
		RiskBandCounts:  make(map[models.RiskBand]int),
		MismatchCounts:  make(map[models.MismatchFlag]int),
		Degenerate:      personaResult.Degenerate,
	}

	// Per-student phase. Each iteration reads only its own index plus the
	// frozen batch outputs, so students fan out without locking.
	rows := make([]models.StudentRow, len(cohort))
	g, gctx := errgroup.WithContext(ctx)
	workers := p.cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)

	for i := range cohort {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			derived, err := p.deriveStudent(cohort[i], scores[i], gapStats, resourceIndexes[i], personaResult.Personas[i])
			if err != nil {
				return err
			}
			rows[i] = models.StudentRow{Record: cohort[i], Derived: derived}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	totalImprovement := 0.0
	for _, row := range rows {
		snapshot.PersonaCounts[row.Derived.Persona]++
		snapshot.RiskBandCounts[row.Derived.RiskBand]++
		snapshot.MismatchCounts[row.Derived.ResourceMismatchFlag]++
		totalImprovement += row.Derived.ExpectedScoreImprovement
	}
	snapshot.MeanExpectedImprovement = totalImprovement / float64(len(rows))

	p.logger.Info("Cohort pipeline run complete",
		utils.String("snapshot_id", snapshot.SnapshotID),
		utils.Int("cohort_size", len(cohort)),
		utils.Float("gap_mean", gapStats.Mean),
		utils.Float("gap_std_dev", gapStats.StdDev),
		utils.Bool("degenerate", snapshot.Degenerate),
		utils.String("duration", time.Since(started).String()))

	return &PipelineResult{Snapshot: snapshot, Rows: rows}, nil
}

// deriveStudent computes one student's derived feature set from the frozen
// batch outputs
func (p *Pipeline) deriveStudent(student *models.StudentRecord, score RiskScore, gapStats *GapStats, resourceIndex float64, persona models.Persona) (*models.DerivedFeatureSet, error) {
	mismatch := p.indexer.Mismatch(resourceIndex, score.Gap)

	// With zero residual variance every z collapses to 0, which would put the
	// whole cohort in the Low band regardless of how far below expectation a
	// student sits. Fall back to the raw-gap thresholds in that case.
	var band models.RiskBand
	if gapStats.StdDev == 0 {
		band = riskBandFromGap(score.Gap, p.cfg.RiskLevelHighGap, p.cfg.RiskLevelMediumGap)
	} else {
		band = RiskBandFromZ(score.GapZ, p.cfg.RiskBandHighZ, p.cfg.RiskBandMediumZ)
	}
	lever := p.selector.Select(persona, mismatch, band)

	improvement, err := p.simulator.Simulate(student, lever)
	if err != nil {
		return nil, fmt.Errorf("intervention simulation for %s: %w", student.StudentID, err)
	}

	return &models.DerivedFeatureSet{
		StudentID:                student.StudentID,
		PredictedScore:           score.Predicted,
		EffortOutcomeGap:         score.Gap,
		EffortOutcomeGapZ:        score.GapZ,
		ResourceIndex:            resourceIndex,
		ResourceMismatchFlag:     mismatch,
		Persona:                  persona,
		RiskBand:                 band,
		PrimaryLever:             lever,
		ExpectedScoreImprovement: improvement,
	}, nil
}

// riskBandFromGap buckets a raw gap with the payload-level thresholds
func riskBandFromGap(gap, highThreshold, mediumThreshold float64) models.RiskBand {
	switch {
	case gap <= highThreshold:
		return models.RiskBandHigh
	case gap <= mediumThreshold:
		return models.RiskBandMedium
	default:
		return models.RiskBandLow
	}
}
