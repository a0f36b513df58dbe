package features

import (
	"github.com/parix-analytics/parix-go/pkg/models"
)

// LeverSelector is a deterministic decision table keyed by
// (persona, resource mismatch, risk band). A HIGH resource mismatch overrides
// the persona default: the deficit is attributed to scarcity, so nothing else
// moves the outcome until resources do. Otherwise the persona rule wins.
type LeverSelector struct{}

// NewLeverSelector creates a lever selector
func NewLeverSelector() *LeverSelector {
	return &LeverSelector{}
}

// Select returns exactly one primary lever. Pure function of its inputs:
// two students with identical (persona, mismatch, band) always get the same
// lever.
func (ls *LeverSelector) Select(persona models.Persona, mismatch models.MismatchFlag, band models.RiskBand) models.Lever {
	if mismatch == models.MismatchHigh {
		return models.LeverResourceAccess
	}

	switch persona {
	case models.PersonaOverworkedStruggler:
		// Already putting the hours in; at high risk the problem is
		// recovery, below that it is targeted help.
		if band == models.RiskBandHigh {
			return models.LeverSleepOptimization
		}
		return models.LeverTutoringSupport

	case models.PersonaDisengaged:
		return models.LeverMotivationCoaching

	case models.PersonaConstrainedAchiever:
		if mismatch == models.MismatchMedium {
			return models.LeverResourceAccess
		}
		return models.LeverStudyEfficiency

	default: // Balanced Performer
		if band == models.RiskBandHigh {
			return models.LeverTutoringSupport
		}
		return models.LeverStudyEfficiency
	}
}
