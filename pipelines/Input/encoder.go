package Input

import (
	"fmt"
	"strings"

	"github.com/parix-analytics/parix-go/pkg/models"
)

// FeatureEncoder maps raw categorical attributes to the numeric codes the
// predictive model was trained on. The encoding tables are fixed: they must
// match the offline training encoding exactly.
type FeatureEncoder struct {
	ordinalMaps map[string]map[string]float64
	binaryMaps  map[string]map[string]float64
	continuous  []string
	// Source columns dropped before encoding.
	droppedColumns map[string]bool
}

// NewFeatureEncoder creates an encoder with the canonical encoding tables
func NewFeatureEncoder() *FeatureEncoder {
	lowMedHigh := map[string]float64{"Low": 0, "Medium": 1, "High": 2}
	noYes := map[string]float64{"No": 0, "Yes": 1}

	return &FeatureEncoder{
		ordinalMaps: map[string]map[string]float64{
			models.FeatureParentalInvolve:   lowMedHigh,
			models.FeatureAccessToResources: lowMedHigh,
			models.FeatureMotivationLevel:   lowMedHigh,
			models.FeatureFamilyIncome:      lowMedHigh,
			models.FeaturePeerInfluence:     {"Negative": 0, "Neutral": 1, "Positive": 2},
		},
		binaryMaps: map[string]map[string]float64{
			models.FeatureInternetAccess:     noYes,
			models.FeatureExtracurricular:    noYes,
			models.FeatureLearningDisability: noYes,
			models.FeatureGender:             {"Female": 0, "Male": 1},
			// Source column "School_Type"; encoded as School_Type_Public.
			"School_Type": {"Private": 0, "Public": 1},
		},
		continuous: []string{
			models.FeatureHoursStudied,
			models.FeatureAttendance,
			models.FeatureSleepHours,
			models.FeaturePreviousScores,
			models.FeatureTutoringSessions,
			models.FeaturePhysicalActivity,
		},
		droppedColumns: map[string]bool{
			"Teacher_Quality":          true,
			"Parental_Education_Level": true,
			"Distance_from_Home":       true,
		},
	}
}

// sourceColumn maps an encoded feature name back to its raw CSV column
func (e *FeatureEncoder) sourceColumn(feature string) string {
	if feature == models.FeatureSchoolTypePublic {
		return "School_Type"
	}
	return feature
}

// ValidateHeader checks that every required column is present
func (e *FeatureEncoder) ValidateHeader(colIndex map[string]int) error {
	for _, feature := range models.FeatureLayout() {
		if _, ok := colIndex[e.sourceColumn(feature)]; !ok {
			return &models.SchemaError{Column: e.sourceColumn(feature), Reason: "required column missing from header"}
		}
	}
	if _, ok := colIndex[models.TargetColumn]; !ok {
		return &models.SchemaError{Column: models.TargetColumn, Reason: "required column missing from header"}
	}
	return nil
}

// EncodeRow encodes one raw CSV row into a StudentRecord
func (e *FeatureEncoder) EncodeRow(studentID string, colIndex map[string]int, row []string) (*models.StudentRecord, error) {
	features := make(map[string]float64, len(models.FeatureLayout()))

	cell := func(column string) (string, error) {
		idx, ok := colIndex[column]
		if !ok || idx >= len(row) {
			return "", &models.SchemaError{StudentID: studentID, Column: column, Reason: "value missing"}
		}
		v := strings.TrimSpace(row[idx])
		if v == "" {
			return "", &models.SchemaError{StudentID: studentID, Column: column, Reason: "value empty"}
		}
		return v, nil
	}

	for _, feature := range e.continuous {
		raw, err := cell(feature)
		if err != nil {
			return nil, err
		}
		v, err := parseNumeric(raw)
		if err != nil {
			return nil, &models.SchemaError{StudentID: studentID, Column: feature, Reason: err.Error()}
		}
		features[feature] = v
	}

	for column, mapping := range e.ordinalMaps {
		raw, err := cell(column)
		if err != nil {
			return nil, err
		}
		code, err := e.encodeCategory(studentID, column, raw, mapping)
		if err != nil {
			return nil, err
		}
		features[column] = code
	}

	for column, mapping := range e.binaryMaps {
		raw, err := cell(column)
		if err != nil {
			return nil, err
		}
		code, err := e.encodeCategory(studentID, column, raw, mapping)
		if err != nil {
			return nil, err
		}
		if column == "School_Type" {
			features[models.FeatureSchoolTypePublic] = code
		} else {
			features[column] = code
		}
	}

	rawScore, err := cell(models.TargetColumn)
	if err != nil {
		return nil, err
	}
	score, err := parseNumeric(rawScore)
	if err != nil {
		return nil, &models.SchemaError{StudentID: studentID, Column: models.TargetColumn, Reason: err.Error()}
	}

	return &models.StudentRecord{
		StudentID: studentID,
		Features:  features,
		ExamScore: score,
	}, nil
}

// encodeCategory maps one categorical value through an encoding table.
// Rows already carrying numeric codes pass through unchanged.
func (e *FeatureEncoder) encodeCategory(studentID, column, raw string, mapping map[string]float64) (float64, error) {
	if code, ok := mapping[raw]; ok {
		return code, nil
	}
	if v, err := parseNumeric(raw); err == nil {
		return v, nil
	}
	return 0, &models.SchemaError{StudentID: studentID, Column: column, Reason: fmt.Sprintf("unknown categorical value %q", raw)}
}
