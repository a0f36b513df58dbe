package features

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/models"
)

// RiskScore holds one student's outcome residual against the model
type RiskScore struct {
	StudentID string  `json:"student_id"`
	Predicted float64 `json:"predicted"`
	Gap       float64 `json:"gap"`
	GapZ      float64 `json:"gap_z"`
}

// GapStats holds the cohort-level residual statistics of one batch pass
type GapStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// RiskScorer computes each student's effort-outcome gap relative to the
// frozen predictive model and standardizes it across the cohort. Read-only
// use of the model and scaler; no shared state is mutated.
type RiskScorer struct {
	model  ml.Model
	scaler ml.FeatureScaler
	layout []string
}

// NewRiskScorer creates a risk scorer over the given frozen capabilities
func NewRiskScorer(model ml.Model, scaler ml.FeatureScaler, layout []string) (*RiskScorer, error) {
	if err := ml.CheckContract(model, scaler, layout); err != nil {
		return nil, err
	}
	return &RiskScorer{model: model, scaler: scaler, layout: layout}, nil
}

// ScoreCohort computes gap and cohort-standardized gap for every student.
// This is a batch operation: the z-scores depend on the full cohort.
func (rs *RiskScorer) ScoreCohort(cohort []*models.StudentRecord) ([]RiskScore, *GapStats, error) {
	if len(cohort) == 0 {
		return nil, nil, fmt.Errorf("empty cohort")
	}

	scores := make([]RiskScore, len(cohort))
	gaps := make([]float64, len(cohort))
	for i, student := range cohort {
		predicted, err := rs.PredictScore(student)
		if err != nil {
			return nil, nil, err
		}
		gap := student.ExamScore - predicted
		scores[i] = RiskScore{
			StudentID: student.StudentID,
			Predicted: predicted,
			Gap:       gap,
		}
		gaps[i] = gap
	}

	mean := stat.Mean(gaps, nil)
	std := 0.0
	if len(gaps) > 1 {
		std = stat.StdDev(gaps, nil)
	}

	// Degenerate cohorts (single row or identical residuals) get z=0 for
	// every student instead of a division by zero.
	for i := range scores {
		if std == 0 {
			scores[i].GapZ = 0
		} else {
			scores[i].GapZ = (scores[i].Gap - mean) / std
		}
	}

	return scores, &GapStats{Mean: mean, StdDev: std}, nil
}

// PredictScore runs the frozen model on one student's feature vector
func (rs *RiskScorer) PredictScore(student *models.StudentRecord) (float64, error) {
	vec, err := student.FeatureVector(rs.layout)
	if err != nil {
		return 0, err
	}
	scaled, err := rs.scaler.Transform(vec)
	if err != nil {
		return 0, err
	}
	predicted, err := rs.model.Predict(scaled)
	if err != nil {
		return 0, err
	}
	return predicted, nil
}

// RiskBandFromZ buckets a cohort-standardized gap into the triage band
func RiskBandFromZ(z, highThreshold, mediumThreshold float64) models.RiskBand {
	switch {
	case z <= highThreshold:
		return models.RiskBandHigh
	case z <= mediumThreshold:
		return models.RiskBandMedium
	default:
		return models.RiskBandLow
	}
}
