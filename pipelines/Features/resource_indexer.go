package features

import (
	"github.com/parix-analytics/parix-go/pkg/models"
)

// Sub-score maxima used to normalize the composite resource index.
const (
	maxAccessToResources = 2.0
	maxInternetAccess    = 1.0
	maxFamilyIncome      = 2.0
)

// Mismatch band cut points on the resource index.
const (
	mismatchHighCut   = 1.0 / 3.0
	mismatchMediumCut = 2.0 / 3.0
)

// ResourceIndexer derives the composite resource-adequacy index and the
// mismatch classification. Both are pure functions of the inputs.
type ResourceIndexer struct{}

// NewResourceIndexer creates a resource indexer
func NewResourceIndexer() *ResourceIndexer {
	return &ResourceIndexer{}
}

// Index computes the composite resource-adequacy index in [0,1]: the mean
// of the three normalized resource sub-scores.
func (ri *ResourceIndexer) Index(student *models.StudentRecord) float64 {
	access := clamp01(student.Feature(models.FeatureAccessToResources) / maxAccessToResources)
	internet := clamp01(student.Feature(models.FeatureInternetAccess) / maxInternetAccess)
	income := clamp01(student.Feature(models.FeatureFamilyIncome) / maxFamilyIncome)
	return (access + internet + income) / 3.0
}

// Mismatch classifies whether an outcome deficit is attributable to resource
// scarcity. A student at or above model expectation has no deficit to
// attribute, so the mismatch is always LOW regardless of the index.
func (ri *ResourceIndexer) Mismatch(resourceIndex, effortOutcomeGap float64) models.MismatchFlag {
	if effortOutcomeGap >= 0 {
		return models.MismatchLow
	}
	switch {
	case resourceIndex <= mismatchHighCut:
		return models.MismatchHigh
	case resourceIndex <= mismatchMediumCut:
		return models.MismatchMedium
	default:
		return models.MismatchLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
