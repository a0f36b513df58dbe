package Input

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/parix-analytics/parix-go/pkg/models"
)

// CohortLoader reads a raw cohort CSV and produces encoded StudentRecords.
// Encoding failures are SchemaErrors and fail the whole load: batch
// statistics downstream would be invalid with partial data.
type CohortLoader struct {
	encoder *FeatureEncoder
}

// NewCohortLoader creates a new cohort CSV loader
func NewCohortLoader() *CohortLoader {
	return &CohortLoader{encoder: NewFeatureEncoder()}
}

// LoadFile reads and encodes a cohort CSV file
func (l *CohortLoader) LoadFile(filePath string) ([]*models.StudentRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cohort file: %w", err)
	}
	defer file.Close()

	records, err := l.Load(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load cohort from %s: %w", filePath, err)
	}
	return records, nil
}

// Load reads and encodes a cohort CSV from a reader
func (l *CohortLoader) Load(r io.Reader) ([]*models.StudentRecord, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, &models.SchemaError{Column: "", Reason: "cohort CSV must have a header and at least one row"}
	}

	header := rows[0]
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	if err := l.encoder.ValidateHeader(colIndex); err != nil {
		return nil, err
	}

	idIdx, hasID := colIndex["Student_ID"]

	students := make([]*models.StudentRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		// Student IDs follow ingestion row order when the source has none.
		id := fmt.Sprintf("STUD%04d", i+1)
		if hasID && idIdx < len(row) && strings.TrimSpace(row[idIdx]) != "" {
			id = strings.TrimSpace(row[idIdx])
		}

		record, err := l.encoder.EncodeRow(id, colIndex, row)
		if err != nil {
			return nil, err
		}
		students = append(students, record)
	}

	return students, nil
}

// parseNumeric parses a CSV cell as a float64
func parseNumeric(value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", value)
	}
	return v, nil
}
