package models

import "fmt"

// SchemaError reports a missing or malformed required column on ingestion.
// A SchemaError fails the whole cohort load: batch statistics would be
// invalid with partial data.
type SchemaError struct {
	StudentID string
	Column    string
	Reason    string
}

func (e *SchemaError) Error() string {
	if e.StudentID != "" {
		return fmt.Sprintf("schema error: student %s, column %q: %s", e.StudentID, e.Column, e.Reason)
	}
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

// ModelContractError reports a violation of the model/scaler capability
// contract, typically a feature dimension mismatch. Fatal for the run.
type ModelContractError struct {
	Capability string // "model" or "scaler"
	Want       int
	Got        int
}

func (e *ModelContractError) Error() string {
	return fmt.Sprintf("model contract error: %s expects %d features, got %d", e.Capability, e.Want, e.Got)
}

// NarrativeError reports a failed or timed-out narrative generation call.
// Recoverable: all previously computed derived fields remain valid.
type NarrativeError struct {
	StudentID string
	Err       error
}

func (e *NarrativeError) Error() string {
	return fmt.Sprintf("narrative generation failed for student %s: %v", e.StudentID, e.Err)
}

func (e *NarrativeError) Unwrap() error {
	return e.Err
}
