package Explain

import (
	"math"

	"github.com/parix-analytics/parix-go/pkg/models"
)

// StudentContext is the fixed two-key context block of the narrative payload
type StudentContext struct {
	SchoolTypePublic     float64 `json:"School_Type_Public"`
	LearningDisabilities float64 `json:"learning_disabilities"`
}

// NarrativePayload is the strict contract consumed by the narrative
// generator. The key set is closed: exactly these keys, no more, no fewer.
type NarrativePayload struct {
	PersonaLabel     models.Persona `json:"persona_label"`
	RiskLevel        string         `json:"risk_level"`
	EffortOutcomeGap float64        `json:"effort_outcome_gap"`
	PrimaryLever     models.Lever   `json:"primary_lever"`
	KeyDrivers       []float64      `json:"key_drivers"`
	StudentContext   StudentContext `json:"student_context"`
}

// keyDriverFeatures is the fixed ordered feature list behind key_drivers
var keyDriverFeatures = []string{
	models.FeatureSleepHours,
	models.FeatureAttendance,
	models.FeatureHoursStudied,
}

// KeyDriverFeatures returns the ordered feature names behind key_drivers
func KeyDriverFeatures() []string {
	out := make([]string, len(keyDriverFeatures))
	copy(out, keyDriverFeatures)
	return out
}

// PayloadBuilder assembles narrative payloads from fully-derived rows.
// risk_level buckets the raw gap with its own thresholds, independent of
// the z-based triage bands.
type PayloadBuilder struct {
	highGap   float64
	mediumGap float64
}

// NewPayloadBuilder creates a payload builder with the raw-gap thresholds
func NewPayloadBuilder(highGap, mediumGap float64) *PayloadBuilder {
	return &PayloadBuilder{highGap: highGap, mediumGap: mediumGap}
}

// AssignRiskLevel buckets a raw effort-outcome gap into High/Medium/Low
func (pb *PayloadBuilder) AssignRiskLevel(gap float64) string {
	switch {
	case gap <= pb.highGap:
		return string(models.RiskBandHigh)
	case gap <= pb.mediumGap:
		return string(models.RiskBandMedium)
	default:
		return string(models.RiskBandLow)
	}
}

// Build assembles the strict payload from one student's derived row
func (pb *PayloadBuilder) Build(row models.StudentRow) *NarrativePayload {
	drivers := make([]float64, len(keyDriverFeatures))
	for i, feature := range keyDriverFeatures {
		drivers[i] = row.Record.Feature(feature)
	}

	gap := roundTo2(row.Derived.EffortOutcomeGap)

	return &NarrativePayload{
		PersonaLabel:     row.Derived.Persona,
		RiskLevel:        pb.AssignRiskLevel(row.Derived.EffortOutcomeGap),
		EffortOutcomeGap: gap,
		PrimaryLever:     row.Derived.PrimaryLever,
		KeyDrivers:       drivers,
		StudentContext: StudentContext{
			SchoolTypePublic:     row.Record.Feature(models.FeatureSchoolTypePublic),
			LearningDisabilities: row.Record.Feature(models.FeatureLearningDisability),
		},
	}
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
