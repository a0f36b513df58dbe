package models

import (
	"fmt"
	"time"
)

// Feature column names in the canonical model input layout.
// The order of FeatureLayout is the order the model and scaler expect.
const (
	FeatureHoursStudied       = "Hours_Studied"
	FeatureAttendance         = "Attendance"
	FeatureSleepHours         = "Sleep_Hours"
	FeaturePreviousScores     = "Previous_Scores"
	FeatureTutoringSessions   = "Tutoring_Sessions"
	FeaturePhysicalActivity   = "Physical_Activity"
	FeatureInternetAccess     = "Internet_Access"
	FeatureExtracurricular    = "Extracurricular_Activities"
	FeatureLearningDisability = "Learning_Disabilities"
	FeatureGender             = "Gender"
	FeatureSchoolTypePublic   = "School_Type_Public"
	FeatureParentalInvolve    = "Parental_Involvement"
	FeatureAccessToResources  = "Access_to_Resources"
	FeatureMotivationLevel    = "Motivation_Level"
	FeatureFamilyIncome       = "Family_Income"
	FeaturePeerInfluence      = "Peer_Influence"

	// TargetColumn is the outcome the predictive model was trained on.
	TargetColumn = "Exam_Score"
)

// FeatureLayout is the ordered list of features forming the model input vector.
func FeatureLayout() []string {
	return []string{
		FeatureHoursStudied,
		FeatureAttendance,
		FeatureSleepHours,
		FeaturePreviousScores,
		FeatureTutoringSessions,
		FeaturePhysicalActivity,
		FeatureInternetAccess,
		FeatureExtracurricular,
		FeatureLearningDisability,
		FeatureGender,
		FeatureSchoolTypePublic,
		FeatureParentalInvolve,
		FeatureAccessToResources,
		FeatureMotivationLevel,
		FeatureFamilyIncome,
		FeaturePeerInfluence,
	}
}

// MaxExamScore is the ceiling of the outcome scale.
const MaxExamScore = 100.0

// Persona is one of the four fixed qualitative failure-mode labels.
type Persona string

const (
	PersonaOverworkedStruggler Persona = "Overworked Struggler"
	PersonaDisengaged          Persona = "Disengaged Despite Resources"
	PersonaConstrainedAchiever Persona = "Resource-Constrained Achiever"
	PersonaBalancedPerformer   Persona = "Balanced Performer"
)

// Personas returns the fixed label set.
func Personas() []Persona {
	return []Persona{
		PersonaOverworkedStruggler,
		PersonaDisengaged,
		PersonaConstrainedAchiever,
		PersonaBalancedPerformer,
	}
}

// MismatchFlag classifies whether an outcome deficit is attributable to
// resource scarcity.
type MismatchFlag string

const (
	MismatchLow    MismatchFlag = "LOW"
	MismatchMedium MismatchFlag = "MEDIUM"
	MismatchHigh   MismatchFlag = "HIGH"
)

// RiskBand is the triage band derived from the cohort-standardized gap.
type RiskBand string

const (
	RiskBandHigh   RiskBand = "High"
	RiskBandMedium RiskBand = "Medium"
	RiskBandLow    RiskBand = "Low"
)

// Lever is a primary intervention category.
type Lever string

const (
	LeverSleepOptimization  Lever = "Sleep Optimization"
	LeverTutoringSupport    Lever = "Tutoring Support"
	LeverResourceAccess     Lever = "Resource Access"
	LeverMotivationCoaching Lever = "Motivation Coaching"
	LeverStudyEfficiency    Lever = "Study Efficiency"
)

// Levers returns the fixed lever set.
func Levers() []Lever {
	return []Lever{
		LeverSleepOptimization,
		LeverTutoringSupport,
		LeverResourceAccess,
		LeverMotivationCoaching,
		LeverStudyEfficiency,
	}
}

// StudentRecord holds one student's encoded raw attributes. Records are
// created at ingestion and never mutated by the pipeline.
type StudentRecord struct {
	StudentID string             `json:"student_id"`
	Features  map[string]float64 `json:"features"`
	ExamScore float64            `json:"exam_score"`
}

// FeatureVector returns the record's features in the given layout order.
// Returns a SchemaError naming the first missing feature.
func (r *StudentRecord) FeatureVector(layout []string) ([]float64, error) {
	vec := make([]float64, len(layout))
	for i, name := range layout {
		v, ok := r.Features[name]
		if !ok {
			return nil, &SchemaError{
				StudentID: r.StudentID,
				Column:    name,
				Reason:    "required feature missing",
			}
		}
		vec[i] = v
	}
	return vec, nil
}

// Feature returns a single raw feature value, or 0 if absent.
func (r *StudentRecord) Feature(name string) float64 {
	return r.Features[name]
}

// DerivedFeatureSet holds the per-student outputs of one pipeline run.
type DerivedFeatureSet struct {
	StudentID                string       `json:"student_id"`
	PredictedScore           float64      `json:"predicted_score"`
	EffortOutcomeGap         float64      `json:"effort_outcome_gap"`
	EffortOutcomeGapZ        float64      `json:"effort_outcome_gap_z"`
	ResourceIndex            float64      `json:"resource_index"`
	ResourceMismatchFlag     MismatchFlag `json:"resource_mismatch_flag"`
	Persona                  Persona      `json:"persona"`
	RiskBand                 RiskBand     `json:"risk_band"`
	PrimaryLever             Lever        `json:"primary_lever"`
	ExpectedScoreImprovement float64      `json:"expected_score_improvement"`
}

// CohortStatistics is an immutable snapshot of batch-level statistics.
// It is rebuilt from scratch on every cohort load and passed explicitly into
// every per-student computation.
type CohortStatistics struct {
	SnapshotID string    `json:"snapshot_id"`
	ComputedAt time.Time `json:"computed_at"`
	CohortSize int       `json:"cohort_size"`

	GapMean   float64 `json:"gap_mean"`
	GapStdDev float64 `json:"gap_std_dev"`

	// Centroids are the fitted cluster centers in standardized
	// cluster-feature space, indexed by raw cluster id.
	Centroids       [][]float64         `json:"centroids,omitempty"`
	ClusterFeatures []string            `json:"cluster_features,omitempty"`
	ClusterPersonas map[int]Persona     `json:"cluster_personas,omitempty"`
	PersonaCounts   map[Persona]int     `json:"persona_counts,omitempty"`
	RiskBandCounts  map[RiskBand]int    `json:"risk_band_counts,omitempty"`
	MismatchCounts  map[MismatchFlag]int `json:"mismatch_counts,omitempty"`

	// MeanExpectedImprovement is the cohort average of the per-student
	// counterfactual score gains.
	MeanExpectedImprovement float64 `json:"mean_expected_improvement"`

	// Degenerate marks cohorts too small or too uniform for clustering.
	Degenerate bool `json:"degenerate"`
}

// StudentRow pairs a raw record with its derived features for output.
type StudentRow struct {
	Record  *StudentRecord     `json:"record"`
	Derived *DerivedFeatureSet `json:"derived"`
}

// String implements fmt.Stringer for log output.
func (d *DerivedFeatureSet) String() string {
	return fmt.Sprintf("%s persona=%q lever=%q gap=%.2f z=%.2f",
		d.StudentID, d.Persona, d.PrimaryLever, d.EffortOutcomeGap, d.EffortOutcomeGapZ)
}
