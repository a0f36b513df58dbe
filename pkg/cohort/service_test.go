package cohort

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parix-analytics/parix-go/pipelines/Explain"
	features "github.com/parix-analytics/parix-go/pipelines/Features"
	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/cohortstore"
	"github.com/parix-analytics/parix-go/pkg/config"
	"github.com/parix-analytics/parix-go/pkg/models"
)

const testCSV = `Student_ID,Hours_Studied,Attendance,Sleep_Hours,Previous_Scores,Tutoring_Sessions,Physical_Activity,Parental_Involvement,Access_to_Resources,Motivation_Level,Family_Income,Peer_Influence,Internet_Access,Extracurricular_Activities,Learning_Disabilities,Gender,School_Type,Exam_Score
STUD0001,20,85,7,70,1,3,Medium,High,Medium,Low,Positive,Yes,No,No,Female,Public,62
STUD0002,25,95,8,80,2,4,High,High,High,Medium,Positive,Yes,Yes,No,Male,Private,78
`

// stubNarrative implements NarrativeGenerator with a fixed reply
type stubNarrative struct {
	reply string
	err   error
	calls int
}

func (s *stubNarrative) Generate(ctx context.Context, studentID string, payload *Explain.NarrativePayload) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestService(t *testing.T, store *cohortstore.SQLiteStore, narrative NarrativeGenerator) *Service {
	t.Helper()

	csvPath := filepath.Join(t.TempDir(), "cohort.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0644))

	cfg := config.DefaultConfig()
	cfg.Data.CohortCSVPath = csvPath

	layout := models.FeatureLayout()
	model := &ml.LinearModel{
		FeatureNames: layout,
		Weights:      make([]float64, len(layout)),
		Intercept:    70,
	}
	means := make([]float64, len(layout))
	stds := make([]float64, len(layout))
	for i := range stds {
		stds[i] = 1
	}
	scaler := &ml.StandardScaler{FeatureNames: layout, Means: means, StdDevs: stds}

	pipeline, err := features.NewPipeline(model, scaler, cfg.Pipeline, cfg.Perturbations)
	require.NoError(t, err)

	return NewService(cfg, pipeline, store, narrative)
}

func TestServiceBeforeFirstLoad(t *testing.T) {
	service := newTestService(t, nil, nil)

	_, err := service.Snapshot()
	assert.ErrorIs(t, err, ErrNoCohort)

	_, err = service.Rows(cohortstore.RowFilter{})
	assert.ErrorIs(t, err, ErrNoCohort)

	_, err = service.Row("STUD0001")
	assert.ErrorIs(t, err, ErrNoCohort)
}

func TestServiceReload(t *testing.T) {
	service := newTestService(t, nil, nil)

	snapshot, err := service.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.CohortSize)
	assert.NotEmpty(t, snapshot.SnapshotID)

	current, err := service.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshot.SnapshotID, current.SnapshotID)

	rows, err := service.Rows(cohortstore.RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "STUD0001", rows[0].Record.StudentID)
	assert.Equal(t, -8.0, rows[0].Derived.EffortOutcomeGap)
	assert.Equal(t, 8.0, rows[1].Derived.EffortOutcomeGap)
}

func TestServiceReloadMissingFile(t *testing.T) {
	service := newTestService(t, nil, nil)
	service.csvPath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := service.Reload(context.Background())
	assert.Error(t, err)

	// The failed reload leaves no partial state behind.
	_, err = service.Snapshot()
	assert.ErrorIs(t, err, ErrNoCohort)
}

func TestServiceRowLookup(t *testing.T) {
	service := newTestService(t, nil, nil)
	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	row, err := service.Row("STUD0002")
	require.NoError(t, err)
	assert.Equal(t, "STUD0002", row.Record.StudentID)

	_, err = service.Row("STUD9999")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestServiceRowsFilter(t *testing.T) {
	service := newTestService(t, nil, nil)
	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	// STUD0001 sits below expectation, STUD0002 above; only STUD0001 gets a
	// Medium band from its z of about -0.71.
	rows, err := service.Rows(cohortstore.RowFilter{RiskBand: models.RiskBandMedium})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "STUD0001", rows[0].Record.StudentID)

	rows, err = service.Rows(cohortstore.RowFilter{Persona: models.PersonaDisengaged})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestServiceRowsSortedMostAtRiskFirst(t *testing.T) {
	// Ingestion order is least-at-risk first; the listing must lead with the
	// lowest z-score so a limited query returns the top-priority students.
	const reversedCSV = `Student_ID,Hours_Studied,Attendance,Sleep_Hours,Previous_Scores,Tutoring_Sessions,Physical_Activity,Parental_Involvement,Access_to_Resources,Motivation_Level,Family_Income,Peer_Influence,Internet_Access,Extracurricular_Activities,Learning_Disabilities,Gender,School_Type,Exam_Score
STUD0001,20,85,7,70,1,3,Medium,High,Medium,Low,Positive,Yes,No,No,Female,Public,78
STUD0002,20,85,7,70,1,3,Medium,High,Medium,Low,Positive,Yes,No,No,Female,Public,70
STUD0003,20,85,7,70,1,3,Medium,High,Medium,Low,Positive,Yes,No,No,Female,Public,58
`
	service := newTestService(t, nil, nil)
	csvPath := filepath.Join(t.TempDir(), "reversed.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(reversedCSV), 0644))
	service.csvPath = csvPath

	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	rows, err := service.Rows(cohortstore.RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.Record.StudentID
	}
	assert.Equal(t, []string{"STUD0003", "STUD0002", "STUD0001"}, ids)

	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].Derived.EffortOutcomeGapZ, rows[i].Derived.EffortOutcomeGapZ)
	}
}

func TestServicePayload(t *testing.T) {
	service := newTestService(t, nil, nil)
	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	payload, err := service.Payload("STUD0001")
	require.NoError(t, err)

	assert.Equal(t, "High", payload.RiskLevel) // raw gap -8
	assert.Equal(t, -8.0, payload.EffortOutcomeGap)
	assert.Equal(t, []float64{7, 85, 20}, payload.KeyDrivers)
	assert.Equal(t, 1.0, payload.StudentContext.SchoolTypePublic)
	assert.Equal(t, 0.0, payload.StudentContext.LearningDisabilities)
}

func TestServiceNarrative(t *testing.T) {
	stub := &stubNarrative{reply: "Keep the current study plan."}
	service := newTestService(t, nil, stub)
	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	narrative, err := service.Narrative(context.Background(), "STUD0001")
	require.NoError(t, err)
	assert.Equal(t, "Keep the current study plan.", narrative)
	assert.Equal(t, 1, stub.calls)
}

func TestServiceNarrativeNotConfigured(t *testing.T) {
	service := newTestService(t, nil, nil)
	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	_, err = service.Narrative(context.Background(), "STUD0001")
	assert.Error(t, err)
}

func TestServiceNarrativeFailureIsIsolated(t *testing.T) {
	stub := &stubNarrative{err: errors.New("upstream down")}
	service := newTestService(t, nil, stub)
	_, err := service.Reload(context.Background())
	require.NoError(t, err)

	_, err = service.Narrative(context.Background(), "STUD0001")
	require.Error(t, err)

	// Derived data stays intact after the failure.
	row, err := service.Row("STUD0001")
	require.NoError(t, err)
	assert.Equal(t, -8.0, row.Derived.EffortOutcomeGap)
}

func TestServiceReloadPersists(t *testing.T) {
	store, err := cohortstore.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	service := newTestService(t, store, nil)
	snapshot, err := service.Reload(context.Background())
	require.NoError(t, err)

	persisted, err := store.GetLatestSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshot.SnapshotID, persisted.SnapshotID)

	rows, err := store.ListStudentRows(snapshot.SnapshotID, cohortstore.RowFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
