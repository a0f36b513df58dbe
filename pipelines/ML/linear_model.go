package ml

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/parix-analytics/parix-go/pkg/models"
)

// Model is the frozen predictive capability the pipeline consumes. The
// pipeline never inspects model internals and never refits. Implementations
// must be side-effect-free and safe for concurrent use.
type Model interface {
	Predict(features []float64) (float64, error)
	NumFeatures() int
}

// LinearModel is a linear regression model loaded from a JSON artifact.
// Inputs are expected in the scaler's standardized space.
type LinearModel struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Intercept    float64   `json:"intercept"`
}

// NumFeatures returns the expected input vector length
func (m *LinearModel) NumFeatures() int {
	return len(m.Weights)
}

// Predict returns the predicted outcome score for a standardized feature vector
func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, &models.ModelContractError{Capability: "model", Want: len(m.Weights), Got: len(features)}
	}
	score := m.Intercept
	for i, w := range m.Weights {
		score += w * features[i]
	}
	return score, nil
}

// Validate checks internal consistency of a loaded model artifact
func (m *LinearModel) Validate() error {
	if len(m.Weights) == 0 {
		return fmt.Errorf("model artifact has no weights")
	}
	if len(m.FeatureNames) != 0 && len(m.FeatureNames) != len(m.Weights) {
		return fmt.Errorf("model artifact feature_names length mismatch: %d vs %d", len(m.FeatureNames), len(m.Weights))
	}
	return nil
}

// LoadModel reads a model artifact from a JSON file
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var model LinearModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}

// Save writes the model artifact to a JSON file
func (m *LinearModel) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	return nil
}

// CheckContract verifies that a model and scaler agree with the feature
// layout the pipeline will feed them.
func CheckContract(model Model, scaler FeatureScaler, layout []string) error {
	if model.NumFeatures() != len(layout) {
		return &models.ModelContractError{Capability: "model", Want: model.NumFeatures(), Got: len(layout)}
	}
	if scaler.NumFeatures() != len(layout) {
		return &models.ModelContractError{Capability: "scaler", Want: scaler.NumFeatures(), Got: len(layout)}
	}
	return nil
}
