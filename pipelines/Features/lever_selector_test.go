package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parix-analytics/parix-go/pkg/models"
)

func TestLeverSelectorHighMismatchOverride(t *testing.T) {
	selector := NewLeverSelector()

	// HIGH resource mismatch overrides every persona default.
	for _, persona := range models.Personas() {
		for _, band := range []models.RiskBand{models.RiskBandHigh, models.RiskBandMedium, models.RiskBandLow} {
			assert.Equal(t, models.LeverResourceAccess,
				selector.Select(persona, models.MismatchHigh, band),
				"persona=%s band=%s", persona, band)
		}
	}
}

func TestLeverSelectorPersonaRules(t *testing.T) {
	selector := NewLeverSelector()

	tests := []struct {
		persona  models.Persona
		mismatch models.MismatchFlag
		band     models.RiskBand
		want     models.Lever
	}{
		{models.PersonaOverworkedStruggler, models.MismatchLow, models.RiskBandHigh, models.LeverSleepOptimization},
		{models.PersonaOverworkedStruggler, models.MismatchLow, models.RiskBandMedium, models.LeverTutoringSupport},
		{models.PersonaOverworkedStruggler, models.MismatchLow, models.RiskBandLow, models.LeverTutoringSupport},
		{models.PersonaDisengaged, models.MismatchLow, models.RiskBandHigh, models.LeverMotivationCoaching},
		{models.PersonaDisengaged, models.MismatchMedium, models.RiskBandLow, models.LeverMotivationCoaching},
		{models.PersonaConstrainedAchiever, models.MismatchMedium, models.RiskBandLow, models.LeverResourceAccess},
		{models.PersonaConstrainedAchiever, models.MismatchLow, models.RiskBandLow, models.LeverStudyEfficiency},
		{models.PersonaBalancedPerformer, models.MismatchLow, models.RiskBandHigh, models.LeverTutoringSupport},
		{models.PersonaBalancedPerformer, models.MismatchLow, models.RiskBandMedium, models.LeverStudyEfficiency},
		{models.PersonaBalancedPerformer, models.MismatchLow, models.RiskBandLow, models.LeverStudyEfficiency},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, selector.Select(tc.persona, tc.mismatch, tc.band),
			"persona=%s mismatch=%s band=%s", tc.persona, tc.mismatch, tc.band)
	}
}

func TestLeverSelectorDeterministic(t *testing.T) {
	selector := NewLeverSelector()

	// Identical inputs always map to the same lever, and exactly one lever
	// comes back for every combination.
	levers := make(map[models.Lever]bool)
	for _, lever := range models.Levers() {
		levers[lever] = true
	}

	mismatches := []models.MismatchFlag{models.MismatchLow, models.MismatchMedium, models.MismatchHigh}
	bands := []models.RiskBand{models.RiskBandHigh, models.RiskBandMedium, models.RiskBandLow}
	for _, persona := range models.Personas() {
		for _, mismatch := range mismatches {
			for _, band := range bands {
				first := selector.Select(persona, mismatch, band)
				second := selector.Select(persona, mismatch, band)
				assert.Equal(t, first, second)
				assert.True(t, levers[first], "unknown lever %q", first)
			}
		}
	}
}
