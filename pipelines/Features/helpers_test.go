package features

import (
	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/models"
)

// newTestStudent builds a record with a full feature map, applying overrides
// on top of a plausible baseline.
func newTestStudent(id string, examScore float64, overrides map[string]float64) *models.StudentRecord {
	features := map[string]float64{
		models.FeatureHoursStudied:       20,
		models.FeatureAttendance:         85,
		models.FeatureSleepHours:         7,
		models.FeaturePreviousScores:     70,
		models.FeatureTutoringSessions:   1,
		models.FeaturePhysicalActivity:   3,
		models.FeatureInternetAccess:     1,
		models.FeatureExtracurricular:    0,
		models.FeatureLearningDisability: 0,
		models.FeatureGender:             0,
		models.FeatureSchoolTypePublic:   1,
		models.FeatureParentalInvolve:    1,
		models.FeatureAccessToResources:  1,
		models.FeatureMotivationLevel:    1,
		models.FeatureFamilyIncome:       1,
		models.FeaturePeerInfluence:      1,
	}
	for k, v := range overrides {
		features[k] = v
	}
	return &models.StudentRecord{StudentID: id, Features: features, ExamScore: examScore}
}

// identityScaler passes vectors through unchanged
func identityScaler() *ml.StandardScaler {
	n := len(models.FeatureLayout())
	means := make([]float64, n)
	stds := make([]float64, n)
	for i := range stds {
		stds[i] = 1
	}
	return &ml.StandardScaler{FeatureNames: models.FeatureLayout(), Means: means, StdDevs: stds}
}

// constantModel always predicts the same score
func constantModel(score float64) *ml.LinearModel {
	return &ml.LinearModel{
		FeatureNames: models.FeatureLayout(),
		Weights:      make([]float64, len(models.FeatureLayout())),
		Intercept:    score,
	}
}

// weightedModel predicts intercept plus the given per-feature weights
func weightedModel(intercept float64, weights map[string]float64) *ml.LinearModel {
	layout := models.FeatureLayout()
	w := make([]float64, len(layout))
	for i, name := range layout {
		w[i] = weights[name]
	}
	return &ml.LinearModel{FeatureNames: layout, Weights: w, Intercept: intercept}
}
