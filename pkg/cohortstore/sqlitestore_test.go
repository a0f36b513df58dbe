package cohortstore

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parix-analytics/parix-go/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSnapshot(id string, computedAt time.Time) *models.CohortStatistics {
	return &models.CohortStatistics{
		SnapshotID: id,
		ComputedAt: computedAt,
		CohortSize: 2,
		GapMean:    -1.5,
		GapStdDev:  3.2,
	}
}

func testRows() []models.StudentRow {
	return []models.StudentRow{
		{
			Record: &models.StudentRecord{
				StudentID: "STUD0001",
				Features:  map[string]float64{models.FeatureSleepHours: 6, models.FeatureAttendance: 90},
				ExamScore: 62,
			},
			Derived: &models.DerivedFeatureSet{
				StudentID:                "STUD0001",
				PredictedScore:           70,
				EffortOutcomeGap:         -8,
				EffortOutcomeGapZ:        -1.1,
				ResourceIndex:            0.5,
				ResourceMismatchFlag:     models.MismatchMedium,
				Persona:                  models.PersonaOverworkedStruggler,
				RiskBand:                 models.RiskBandHigh,
				PrimaryLever:             models.LeverSleepOptimization,
				ExpectedScoreImprovement: 2.5,
			},
		},
		{
			Record: &models.StudentRecord{
				StudentID: "STUD0002",
				Features:  map[string]float64{models.FeatureSleepHours: 8, models.FeatureAttendance: 95},
				ExamScore: 78,
			},
			Derived: &models.DerivedFeatureSet{
				StudentID:            "STUD0002",
				PredictedScore:       73,
				EffortOutcomeGap:     5,
				ResourceIndex:        0.8,
				ResourceMismatchFlag: models.MismatchLow,
				Persona:              models.PersonaBalancedPerformer,
				RiskBand:             models.RiskBandLow,
				PrimaryLever:         models.LeverStudyEfficiency,
			},
		},
	}
}

func TestSaveAndGetLatestSnapshot(t *testing.T) {
	store := newTestStore(t)

	older := testSnapshot("snap-old", time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC))
	newer := testSnapshot("snap-new", time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveSnapshot(older, testRows()))
	require.NoError(t, store.SaveSnapshot(newer, testRows()))

	latest, err := store.GetLatestSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "snap-new", latest.SnapshotID)
	assert.Equal(t, 2, latest.CohortSize)
	assert.InDelta(t, -1.5, latest.GapMean, 1e-12)

	snapshots, err := store.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "snap-new", snapshots[0].SnapshotID)
	assert.Equal(t, "snap-old", snapshots[1].SnapshotID)
}

func TestGetLatestSnapshotEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetLatestSnapshot()
	assert.Error(t, err)
}

func TestGetStudentRow(t *testing.T) {
	store := newTestStore(t)
	snapshot := testSnapshot("snap-1", time.Now().UTC())
	require.NoError(t, store.SaveSnapshot(snapshot, testRows()))

	row, err := store.GetStudentRow("snap-1", "STUD0001")
	require.NoError(t, err)
	assert.Equal(t, "STUD0001", row.Record.StudentID)
	assert.Equal(t, models.PersonaOverworkedStruggler, row.Derived.Persona)
	assert.Equal(t, 62.0, row.Record.ExamScore)

	_, err = store.GetStudentRow("snap-1", "STUD9999")
	assert.Error(t, err)
}

func TestListStudentRowsFilters(t *testing.T) {
	store := newTestStore(t)
	snapshot := testSnapshot("snap-1", time.Now().UTC())
	require.NoError(t, store.SaveSnapshot(snapshot, testRows()))

	t.Run("no filter", func(t *testing.T) {
		rows, err := store.ListStudentRows("snap-1", RowFilter{})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "STUD0001", rows[0].Record.StudentID)
		assert.Equal(t, "STUD0002", rows[1].Record.StudentID)
	})

	t.Run("by persona", func(t *testing.T) {
		rows, err := store.ListStudentRows("snap-1", RowFilter{Persona: models.PersonaOverworkedStruggler})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "STUD0001", rows[0].Record.StudentID)
	})

	t.Run("by risk band", func(t *testing.T) {
		rows, err := store.ListStudentRows("snap-1", RowFilter{RiskBand: models.RiskBandLow})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "STUD0002", rows[0].Record.StudentID)
	})

	t.Run("by lever", func(t *testing.T) {
		rows, err := store.ListStudentRows("snap-1", RowFilter{Lever: models.LeverSleepOptimization})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "STUD0001", rows[0].Record.StudentID)
	})

	t.Run("no match", func(t *testing.T) {
		rows, err := store.ListStudentRows("snap-1", RowFilter{Persona: models.PersonaDisengaged})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestExportCSV(t *testing.T) {
	store := newTestStore(t)
	snapshot := testSnapshot("snap-1", time.Now().UTC())
	require.NoError(t, store.SaveSnapshot(snapshot, testRows()))

	var buf bytes.Buffer
	require.NoError(t, store.ExportCSV(&buf, "snap-1", RowFilter{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 rows

	header := records[0]
	assert.Equal(t, "Student_ID", header[0])
	assert.Equal(t, models.FeatureLayout(), header[1:len(models.FeatureLayout())+1])
	assert.Equal(t, "expected_score_improvement", header[len(header)-1])

	assert.Equal(t, "STUD0001", records[1][0])
	assert.Equal(t, "STUD0002", records[2][0])
}

func TestSaveSnapshotIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	snapshot := testSnapshot("snap-1", time.Now().UTC())

	require.NoError(t, store.SaveSnapshot(snapshot, testRows()))
	require.NoError(t, store.SaveSnapshot(snapshot, testRows()))

	rows, err := store.ListStudentRows("snap-1", RowFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDeleteSnapshot(t *testing.T) {
	store := newTestStore(t)
	snapshot := testSnapshot("snap-1", time.Now().UTC())
	require.NoError(t, store.SaveSnapshot(snapshot, testRows()))

	require.NoError(t, store.DeleteSnapshot("snap-1"))

	rows, err := store.ListStudentRows("snap-1", RowFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Error(t, store.DeleteSnapshot("snap-1"))
}
