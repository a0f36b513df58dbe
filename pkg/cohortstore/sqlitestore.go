package cohortstore

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parix-analytics/parix-go/pkg/models"
)

// RowFilter narrows ListStudentRows and ExportCSV to matching students.
// Zero values mean no filtering on that field.
type RowFilter struct {
	Persona  models.Persona
	RiskBand models.RiskBand
	Lever    models.Lever
}

// SQLiteStore persists cohort snapshots and their derived student rows.
// Key derived columns are broken out for filtering; the full row is kept as
// JSON alongside them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based storage instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway, keep the pool small.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}

	// In-memory databases in tests report "delete" or "memory" instead of WAL.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return nil, fmt.Errorf("failed to check journal mode: %w", err)
	}
	if journalMode != "wal" && journalMode != "delete" && journalMode != "memory" {
		return nil, fmt.Errorf("unexpected journal mode: got %s", journalMode)
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails due to SQLITE_BUSY.
// Safety net on top of the busy_timeout pragma.
func (s *SQLiteStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if err.Error() == "database is locked (5) (SQLITE_BUSY)" {
			backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
			time.Sleep(backoff)
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		snapshot_id TEXT PRIMARY KEY,
		computed_at DATETIME NOT NULL,
		cohort_size INTEGER NOT NULL,
		gap_mean REAL NOT NULL,
		gap_std_dev REAL NOT NULL,
		degenerate INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS student_rows (
		snapshot_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		persona TEXT NOT NULL,
		risk_band TEXT NOT NULL,
		primary_lever TEXT NOT NULL,
		effort_outcome_gap REAL NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, student_id),
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_student_rows_snapshot_id ON student_rows(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_student_rows_persona ON student_rows(snapshot_id, persona);
	CREATE INDEX IF NOT EXISTS idx_student_rows_risk_band ON student_rows(snapshot_id, risk_band);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot persists a snapshot with all its student rows in one
// transaction. A snapshot is immutable once written.
func (s *SQLiteStore) SaveSnapshot(snapshot *models.CohortStatistics, rows []models.StudentRow) error {
	snapshotData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return s.retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		degenerate := 0
		if snapshot.Degenerate {
			degenerate = 1
		}

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO snapshots (snapshot_id, computed_at, cohort_size, gap_mean, gap_std_dev, degenerate, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			snapshot.SnapshotID,
			snapshot.ComputedAt,
			snapshot.CohortSize,
			snapshot.GapMean,
			snapshot.GapStdDev,
			degenerate,
			string(snapshotData),
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}

		rowQuery := `
			INSERT OR REPLACE INTO student_rows (snapshot_id, student_id, persona, risk_band, primary_lever, effort_outcome_gap, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		for _, row := range rows {
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("failed to marshal row for %s: %w", row.Record.StudentID, err)
			}
			_, err = tx.Exec(rowQuery,
				snapshot.SnapshotID,
				row.Record.StudentID,
				string(row.Derived.Persona),
				string(row.Derived.RiskBand),
				string(row.Derived.PrimaryLever),
				row.Derived.EffortOutcomeGap,
				string(data),
			)
			if err != nil {
				return fmt.Errorf("failed to save row for %s: %w", row.Record.StudentID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}, 5)
}

// GetLatestSnapshot returns the most recently computed snapshot
func (s *SQLiteStore) GetLatestSnapshot() (*models.CohortStatistics, error) {
	var data string
	query := `SELECT data FROM snapshots ORDER BY computed_at DESC LIMIT 1`

	err := s.db.QueryRow(query).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshots stored")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	var snapshot models.CohortStatistics
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// ListSnapshots lists all stored snapshots, newest first
func (s *SQLiteStore) ListSnapshots() ([]*models.CohortStatistics, error) {
	rows, err := s.db.Query(`SELECT data FROM snapshots ORDER BY computed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*models.CohortStatistics, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var snapshot models.CohortStatistics
		if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
			continue
		}
		snapshots = append(snapshots, &snapshot)
	}
	return snapshots, nil
}

// GetStudentRow retrieves one student's row within a snapshot
func (s *SQLiteStore) GetStudentRow(snapshotID, studentID string) (*models.StudentRow, error) {
	var data string
	query := `SELECT data FROM student_rows WHERE snapshot_id = ? AND student_id = ?`

	err := s.db.QueryRow(query, snapshotID, studentID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("student not found: %s", studentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student row: %w", err)
	}

	var row models.StudentRow
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal student row: %w", err)
	}
	return &row, nil
}

// ListStudentRows lists a snapshot's rows matching the filter
func (s *SQLiteStore) ListStudentRows(snapshotID string, filter RowFilter) ([]models.StudentRow, error) {
	query := `SELECT data FROM student_rows WHERE snapshot_id = ?`
	args := []any{snapshotID}

	if filter.Persona != "" {
		query += ` AND persona = ?`
		args = append(args, string(filter.Persona))
	}
	if filter.RiskBand != "" {
		query += ` AND risk_band = ?`
		args = append(args, string(filter.RiskBand))
	}
	if filter.Lever != "" {
		query += ` AND primary_lever = ?`
		args = append(args, string(filter.Lever))
	}
	query += ` ORDER BY student_id`

	dbRows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list student rows: %w", err)
	}
	defer dbRows.Close()

	out := make([]models.StudentRow, 0)
	for dbRows.Next() {
		var data string
		if err := dbRows.Scan(&data); err != nil {
			continue
		}
		var row models.StudentRow
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// ExportCSV streams a snapshot's rows matching the filter as CSV. Column
// set is the raw feature layout plus every derived field.
func (s *SQLiteStore) ExportCSV(w io.Writer, snapshotID string, filter RowFilter) error {
	rows, err := s.ListStudentRows(snapshotID, filter)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	layout := models.FeatureLayout()

	header := append([]string{"Student_ID"}, layout...)
	header = append(header,
		models.TargetColumn,
		"predicted_score",
		"effort_outcome_gap",
		"effort_outcome_gap_z",
		"resource_index",
		"resource_mismatch_flag",
		"persona",
		"risk_band",
		"primary_lever",
		"expected_score_improvement",
	)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Record.StudentID)
		for _, feature := range layout {
			record = append(record, formatFloat(row.Record.Feature(feature)))
		}
		d := row.Derived
		record = append(record,
			formatFloat(row.Record.ExamScore),
			formatFloat(d.PredictedScore),
			formatFloat(d.EffortOutcomeGap),
			formatFloat(d.EffortOutcomeGapZ),
			formatFloat(d.ResourceIndex),
			string(d.ResourceMismatchFlag),
			string(d.Persona),
			string(d.RiskBand),
			string(d.PrimaryLever),
			formatFloat(d.ExpectedScoreImprovement),
		)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", row.Record.StudentID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// DeleteSnapshot removes a snapshot and its rows
func (s *SQLiteStore) DeleteSnapshot(snapshotID string) error {
	return s.retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM student_rows WHERE snapshot_id = ?`, snapshotID); err != nil {
			return fmt.Errorf("failed to delete student rows: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM snapshots WHERE snapshot_id = ?`, snapshotID)
		if err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("snapshot not found: %s", snapshotID)
		}

		return tx.Commit()
	}, 5)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
