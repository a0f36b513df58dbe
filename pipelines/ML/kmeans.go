package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// KMeansConfig holds configuration for a k-means fit
type KMeansConfig struct {
	K             int   `json:"k"`
	MaxIterations int   `json:"max_iterations"`
	RandomSeed    int64 `json:"random_seed"` // For reproducibility
}

// DefaultKMeansConfig returns a k-means config with sensible defaults
func DefaultKMeansConfig(k int, seed int64) *KMeansConfig {
	return &KMeansConfig{
		K:             k,
		MaxIterations: 100,
		RandomSeed:    seed,
	}
}

// KMeansResult holds a fitted partition
type KMeansResult struct {
	Centroids  [][]float64 `json:"centroids"`
	Labels     []int       `json:"labels"`
	Iterations int         `json:"iterations"`
	Inertia    float64     `json:"inertia"`
}

// KMeans is a partition-based clusterer over dense float matrices. Fits are
// reproducible: the same data, k, and seed always yield the same partition.
type KMeans struct {
	Config *KMeansConfig
}

// NewKMeans creates a new k-means clusterer
func NewKMeans(config *KMeansConfig) *KMeans {
	if config == nil {
		config = DefaultKMeansConfig(4, 42)
	}
	return &KMeans{Config: config}
}

// Fit partitions X into K clusters using Lloyd's algorithm with k-means++
// style seeding driven by the configured random seed.
func (km *KMeans) Fit(X [][]float64) (*KMeansResult, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("empty data")
	}
	k := km.Config.K
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if DistinctRows(X) < k {
		return nil, fmt.Errorf("need at least %d distinct rows, got %d", k, DistinctRows(X))
	}
	dims := len(X[0])
	for i, row := range X {
		if len(row) != dims {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), dims)
		}
	}

	rng := rand.New(rand.NewSource(km.Config.RandomSeed))
	centroids := km.seedCentroids(X, rng)
	labels := make([]int, n)

	maxIter := km.Config.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	var iterations int
	for iterations = 0; iterations < maxIter; iterations++ {
		changed := false
		for i, row := range X {
			best := nearestCentroid(row, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if iterations > 0 && !changed {
			break
		}

		// Recompute centroids. An emptied cluster is reseeded with the point
		// farthest from its current centroid, keeping k partitions alive.
		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, row := range X {
			c := labels[i]
			counts[c]++
			for j, v := range row {
				next[c][j] += v
			}
		}
		for c := range next {
			if counts[c] == 0 {
				copy(next[c], X[farthestPoint(X, labels, centroids)])
				continue
			}
			for j := range next[c] {
				next[c][j] /= float64(counts[c])
			}
		}
		centroids = next
	}

	var inertia float64
	for i, row := range X {
		inertia += squaredDistance(row, centroids[labels[i]])
	}

	return &KMeansResult{
		Centroids:  centroids,
		Labels:     labels,
		Iterations: iterations,
		Inertia:    inertia,
	}, nil
}

// seedCentroids picks initial centroids with k-means++ weighting
func (km *KMeans) seedCentroids(X [][]float64, rng *rand.Rand) [][]float64 {
	k := km.Config.K
	centroids := make([][]float64, 0, k)

	first := append([]float64(nil), X[rng.Intn(len(X))]...)
	centroids = append(centroids, first)

	for len(centroids) < k {
		weights := make([]float64, len(X))
		var total float64
		for i, row := range X {
			d := math.Inf(1)
			for _, c := range centroids {
				if sq := squaredDistance(row, c); sq < d {
					d = sq
				}
			}
			weights[i] = d
			total += d
		}
		if total == 0 {
			// All remaining points coincide with a centroid; pick any.
			centroids = append(centroids, append([]float64(nil), X[rng.Intn(len(X))]...))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		chosen := len(X) - 1
		for i, w := range weights {
			cum += w
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), X[chosen]...))
	}
	return centroids
}

// nearestCentroid returns the index of the closest centroid, lowest index
// winning ties
func nearestCentroid(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(row, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// farthestPoint returns the index of the point farthest from its assigned centroid
func farthestPoint(X [][]float64, labels []int, centroids [][]float64) int {
	best := 0
	bestDist := -1.0
	for i, row := range X {
		if d := squaredDistance(row, centroids[labels[i]]); d > bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// DistinctRows counts the number of distinct rows in X
func DistinctRows(X [][]float64) int {
	seen := make(map[string]struct{}, len(X))
	for _, row := range X {
		key := fmt.Sprintf("%v", row)
		seen[key] = struct{}{}
	}
	return len(seen)
}
