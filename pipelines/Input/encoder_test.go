package Input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parix-analytics/parix-go/pkg/models"
)

func sampleColIndex() map[string]int {
	cols := []string{
		"Hours_Studied", "Attendance", "Sleep_Hours", "Previous_Scores",
		"Tutoring_Sessions", "Physical_Activity", "Internet_Access",
		"Extracurricular_Activities", "Learning_Disabilities", "Gender",
		"School_Type", "Parental_Involvement", "Access_to_Resources",
		"Motivation_Level", "Family_Income", "Peer_Influence", "Exam_Score",
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return index
}

func sampleRow() []string {
	return []string{
		"20", "85", "7", "72",
		"2", "3", "Yes",
		"No", "No", "Female",
		"Public", "High", "Medium",
		"Low", "Medium", "Positive", "68",
	}
}

func TestEncodeRow(t *testing.T) {
	encoder := NewFeatureEncoder()
	colIndex := sampleColIndex()

	record, err := encoder.EncodeRow("STUD0001", colIndex, sampleRow())
	require.NoError(t, err)

	assert.Equal(t, "STUD0001", record.StudentID)
	assert.Equal(t, 68.0, record.ExamScore)

	assert.Equal(t, 20.0, record.Feature(models.FeatureHoursStudied))
	assert.Equal(t, 1.0, record.Feature(models.FeatureInternetAccess))
	assert.Equal(t, 0.0, record.Feature(models.FeatureExtracurricular))
	assert.Equal(t, 0.0, record.Feature(models.FeatureGender))
	assert.Equal(t, 2.0, record.Feature(models.FeatureParentalInvolve))
	assert.Equal(t, 1.0, record.Feature(models.FeatureAccessToResources))
	assert.Equal(t, 0.0, record.Feature(models.FeatureMotivationLevel))
	assert.Equal(t, 2.0, record.Feature(models.FeaturePeerInfluence))

	// School_Type "Public" becomes the School_Type_Public indicator.
	assert.Equal(t, 1.0, record.Feature(models.FeatureSchoolTypePublic))
	_, hasRaw := record.Features["School_Type"]
	assert.False(t, hasRaw)

	// Every layout feature must be present.
	vec, err := record.FeatureVector(models.FeatureLayout())
	require.NoError(t, err)
	assert.Len(t, vec, len(models.FeatureLayout()))
}

func TestEncodeRowPrivateSchool(t *testing.T) {
	encoder := NewFeatureEncoder()
	colIndex := sampleColIndex()
	row := sampleRow()
	row[colIndex["School_Type"]] = "Private"

	record, err := encoder.EncodeRow("STUD0001", colIndex, row)
	require.NoError(t, err)
	assert.Equal(t, 0.0, record.Feature(models.FeatureSchoolTypePublic))
}

func TestEncodeRowNumericPassthrough(t *testing.T) {
	encoder := NewFeatureEncoder()
	colIndex := sampleColIndex()
	row := sampleRow()
	// Pre-encoded sources carry numeric codes instead of labels.
	row[colIndex["Motivation_Level"]] = "2"
	row[colIndex["Internet_Access"]] = "1"

	record, err := encoder.EncodeRow("STUD0001", colIndex, row)
	require.NoError(t, err)
	assert.Equal(t, 2.0, record.Feature(models.FeatureMotivationLevel))
	assert.Equal(t, 1.0, record.Feature(models.FeatureInternetAccess))
}

func TestEncodeRowErrors(t *testing.T) {
	encoder := NewFeatureEncoder()
	colIndex := sampleColIndex()

	t.Run("unknown categorical value", func(t *testing.T) {
		row := sampleRow()
		row[colIndex["Family_Income"]] = "Unknown"

		_, err := encoder.EncodeRow("STUD0002", colIndex, row)
		var schemaErr *models.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "Family_Income", schemaErr.Column)
		assert.Equal(t, "STUD0002", schemaErr.StudentID)
	})

	t.Run("empty cell", func(t *testing.T) {
		row := sampleRow()
		row[colIndex["Attendance"]] = " "

		_, err := encoder.EncodeRow("STUD0003", colIndex, row)
		var schemaErr *models.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "Attendance", schemaErr.Column)
	})

	t.Run("non-numeric continuous value", func(t *testing.T) {
		row := sampleRow()
		row[colIndex["Sleep_Hours"]] = "eight"

		_, err := encoder.EncodeRow("STUD0004", colIndex, row)
		var schemaErr *models.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "Sleep_Hours", schemaErr.Column)
	})
}

func TestValidateHeader(t *testing.T) {
	encoder := NewFeatureEncoder()

	t.Run("complete header passes", func(t *testing.T) {
		assert.NoError(t, encoder.ValidateHeader(sampleColIndex()))
	})

	t.Run("missing feature column", func(t *testing.T) {
		colIndex := sampleColIndex()
		delete(colIndex, "Sleep_Hours")

		err := encoder.ValidateHeader(colIndex)
		var schemaErr *models.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "Sleep_Hours", schemaErr.Column)
	})

	t.Run("missing target column", func(t *testing.T) {
		colIndex := sampleColIndex()
		delete(colIndex, "Exam_Score")

		err := encoder.ValidateHeader(colIndex)
		var schemaErr *models.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "Exam_Score", schemaErr.Column)
	})
}
