package features

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/models"
)

// Indices into the cluster-feature matrix columns.
const (
	clusterColGap = iota
	clusterColSleep
	clusterColMotivation
	clusterColAttendance
	clusterColResource
	clusterColCount
)

// ClusterFeatureNames returns the ordered cluster-feature column names
func ClusterFeatureNames() []string {
	return []string{
		"effort_outcome_gap",
		models.FeatureSleepHours,
		models.FeatureMotivationLevel,
		models.FeatureAttendance,
		"resource_index",
	}
}

// PersonaResult holds the outcome of one classification pass. The fit
// artifact lives only for this pass; it is not persisted across reloads.
type PersonaResult struct {
	Personas        []models.Persona
	Centroids       [][]float64
	ClusterPersonas map[int]models.Persona
	Degenerate      bool
}

// PersonaClassifier clusters students on a standardized feature subset and
// assigns the fixed qualitative labels. Raw cluster indices are arbitrary
// per fit, so labels are always re-derived from centroid profiles.
type PersonaClassifier struct {
	clusterCount int
	seed         int64
}

// NewPersonaClassifier creates a persona classifier
func NewPersonaClassifier(clusterCount int, seed int64) *PersonaClassifier {
	return &PersonaClassifier{clusterCount: clusterCount, seed: seed}
}

// Classify assigns a persona to every student. gaps and resourceIndexes are
// positional, parallel to cohort. Degenerate cohorts (fewer distinct feature
// rows than clusters) fall back to Balanced Performer for all students.
func (pc *PersonaClassifier) Classify(cohort []*models.StudentRecord, gaps, resourceIndexes []float64) (*PersonaResult, error) {
	n := len(cohort)
	if n == 0 {
		return nil, fmt.Errorf("empty cohort")
	}
	if len(gaps) != n || len(resourceIndexes) != n {
		return nil, fmt.Errorf("gaps and resource indexes must be parallel to the cohort")
	}

	matrix := pc.buildMatrix(cohort, gaps, resourceIndexes)
	standardizeColumns(matrix)

	if ml.DistinctRows(matrix) < pc.clusterCount {
		personas := make([]models.Persona, n)
		for i := range personas {
			personas[i] = models.PersonaBalancedPerformer
		}
		return &PersonaResult{Personas: personas, Degenerate: true}, nil
	}

	km := ml.NewKMeans(ml.DefaultKMeansConfig(pc.clusterCount, pc.seed))
	fit, err := km.Fit(matrix)
	if err != nil {
		return nil, fmt.Errorf("persona clustering failed: %w", err)
	}

	clusterPersonas := mapCentroidsToPersonas(fit.Centroids)

	personas := make([]models.Persona, n)
	for i, label := range fit.Labels {
		personas[i] = clusterPersonas[label]
	}

	return &PersonaResult{
		Personas:        personas,
		Centroids:       fit.Centroids,
		ClusterPersonas: clusterPersonas,
	}, nil
}

// buildMatrix assembles the raw cluster-feature matrix
func (pc *PersonaClassifier) buildMatrix(cohort []*models.StudentRecord, gaps, resourceIndexes []float64) [][]float64 {
	matrix := make([][]float64, len(cohort))
	for i, student := range cohort {
		row := make([]float64, clusterColCount)
		row[clusterColGap] = gaps[i]
		row[clusterColSleep] = student.Feature(models.FeatureSleepHours)
		row[clusterColMotivation] = student.Feature(models.FeatureMotivationLevel)
		row[clusterColAttendance] = student.Feature(models.FeatureAttendance)
		row[clusterColResource] = resourceIndexes[i]
		matrix[i] = row
	}
	return matrix
}

// standardizeColumns centers and scales each column to zero mean and unit
// variance in place. Constant columns become all zeros.
func standardizeColumns(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	cols := len(matrix[0])
	column := make([]float64, len(matrix))
	for j := 0; j < cols; j++ {
		for i := range matrix {
			column[i] = matrix[i][j]
		}
		mean := stat.Mean(column, nil)
		std := 0.0
		if len(column) > 1 {
			std = stat.StdDev(column, nil)
		}
		for i := range matrix {
			if std == 0 {
				matrix[i][j] = 0
			} else {
				matrix[i][j] = (matrix[i][j] - mean) / std
			}
		}
	}
}

// mapCentroidsToPersonas assigns the fixed labels one-to-one against
// centroid profiles in standardized space. The scan order is fixed, so the
// mapping is invariant to the arbitrary cluster index ordering k-means
// produces: each rule picks its best-matching unclaimed centroid, ties
// breaking on the lower centroid index, and the last centroid left is the
// Balanced Performer.
func mapCentroidsToPersonas(centroids [][]float64) map[int]models.Persona {
	assigned := make(map[int]models.Persona, len(centroids))
	taken := make(map[int]bool, len(centroids))

	rules := []struct {
		persona models.Persona
		score   func(c []float64) float64
	}{
		// High effort (attendance) combined with a low outcome residual.
		{models.PersonaOverworkedStruggler, func(c []float64) float64 {
			return c[clusterColAttendance] - c[clusterColGap]
		}},
		// Well resourced but unmotivated.
		{models.PersonaDisengaged, func(c []float64) float64 {
			return c[clusterColResource] - c[clusterColMotivation]
		}},
		// Holding expectation (or above) despite scarce resources.
		{models.PersonaConstrainedAchiever, func(c []float64) float64 {
			return c[clusterColGap] - c[clusterColResource]
		}},
	}

	for _, rule := range rules {
		best := -1
		bestScore := 0.0
		for idx, centroid := range centroids {
			if taken[idx] {
				continue
			}
			score := rule.score(centroid)
			if best == -1 || score > bestScore {
				best = idx
				bestScore = score
			}
		}
		if best >= 0 {
			assigned[best] = rule.persona
			taken[best] = true
		}
	}

	for idx := range centroids {
		if !taken[idx] {
			assigned[idx] = models.PersonaBalancedPerformer
		}
	}

	return assigned
}
