package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/parix-analytics/parix-go/pkg/models"
)

// FeatureScaler is the frozen normalization capability the pipeline consumes.
// Implementations must be side-effect-free and safe for concurrent use.
type FeatureScaler interface {
	Transform(features []float64) ([]float64, error)
	NumFeatures() int
}

// StandardScaler normalizes each feature to zero mean and unit variance
// using statistics fitted offline.
type StandardScaler struct {
	FeatureNames []string  `json:"feature_names"`
	Means        []float64 `json:"means"`
	StdDevs      []float64 `json:"std_devs"`
}

// NumFeatures returns the expected input vector length
func (s *StandardScaler) NumFeatures() int {
	return len(s.Means)
}

// Transform returns a standardized copy of the input vector. The input is
// never mutated. Constant features (zero stddev) pass through centered only.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Means) {
		return nil, &models.ModelContractError{Capability: "scaler", Want: len(s.Means), Got: len(features)}
	}
	out := make([]float64, len(features))
	for i, v := range features {
		sd := s.StdDevs[i]
		if sd == 0 {
			sd = 1
		}
		out[i] = (v - s.Means[i]) / sd
	}
	return out, nil
}

// Validate checks internal consistency of a loaded scaler artifact
func (s *StandardScaler) Validate() error {
	if len(s.Means) == 0 {
		return fmt.Errorf("scaler artifact has no fitted statistics")
	}
	if len(s.Means) != len(s.StdDevs) {
		return fmt.Errorf("scaler artifact means/std_devs length mismatch: %d vs %d", len(s.Means), len(s.StdDevs))
	}
	if len(s.FeatureNames) != 0 && len(s.FeatureNames) != len(s.Means) {
		return fmt.Errorf("scaler artifact feature_names length mismatch: %d vs %d", len(s.FeatureNames), len(s.Means))
	}
	return nil
}

// FitStandardScaler fits a scaler on a feature matrix (training tool only;
// the service never refits).
func FitStandardScaler(X [][]float64, featureNames []string) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("empty training data")
	}
	cols := len(X[0])
	means := make([]float64, cols)
	stds := make([]float64, cols)

	for j := 0; j < cols; j++ {
		var sum float64
		for i := range X {
			sum += X[i][j]
		}
		mean := sum / float64(len(X))

		var sq float64
		for i := range X {
			d := X[i][j] - mean
			sq += d * d
		}
		// Population variance, matching the offline fitting convention.
		means[j] = mean
		stds[j] = math.Sqrt(sq / float64(len(X)))
	}

	return &StandardScaler{
		FeatureNames: featureNames,
		Means:        means,
		StdDevs:      stds,
	}, nil
}

// LoadScaler reads a scaler artifact from a JSON file
func LoadScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler artifact: %w", err)
	}
	var scaler StandardScaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, fmt.Errorf("failed to parse scaler artifact: %w", err)
	}
	if err := scaler.Validate(); err != nil {
		return nil, err
	}
	return &scaler, nil
}

// Save writes the scaler artifact to a JSON file
func (s *StandardScaler) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scaler artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write scaler artifact: %w", err)
	}
	return nil
}
