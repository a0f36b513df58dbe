package features

import (
	"fmt"

	"github.com/parix-analytics/parix-go/pkg/config"
	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/models"
)

// InterventionSimulator estimates the score impact of a lever by re-running
// the frozen model on a counterfactual copy of the student's features. Pure
// function of its inputs; safe to call concurrently across students.
type InterventionSimulator struct {
	model  ml.Model
	scaler ml.FeatureScaler
	layout []string
	rules  map[models.Lever]config.PerturbationRule
}

// NewInterventionSimulator creates a simulator over the frozen capabilities
// and the fixed per-lever perturbation table
func NewInterventionSimulator(model ml.Model, scaler ml.FeatureScaler, layout []string, rules []config.PerturbationRule) (*InterventionSimulator, error) {
	if err := ml.CheckContract(model, scaler, layout); err != nil {
		return nil, err
	}
	byLever := make(map[models.Lever]config.PerturbationRule, len(rules))
	for _, rule := range rules {
		byLever[rule.Lever] = rule
	}
	return &InterventionSimulator{
		model:  model,
		scaler: scaler,
		layout: layout,
		rules:  byLever,
	}, nil
}

// Simulate returns the expected score improvement for applying the lever's
// perturbation to the student. The original record is never mutated. The
// result is non-negative and cannot exceed the headroom left on the score
// scale above the baseline prediction.
func (is *InterventionSimulator) Simulate(student *models.StudentRecord, lever models.Lever) (float64, error) {
	rule, ok := is.rules[lever]
	if !ok {
		return 0, fmt.Errorf("no perturbation rule for lever %q", lever)
	}

	baseline, err := is.predict(student.Features)
	if err != nil {
		return 0, err
	}

	counterfactual := make(map[string]float64, len(student.Features))
	for k, v := range student.Features {
		counterfactual[k] = v
	}
	counterfactual[rule.Feature] = clampRange(counterfactual[rule.Feature]+rule.Delta, rule.Min, rule.Max)

	perturbed, err := is.predict(counterfactual)
	if err != nil {
		return 0, err
	}

	improvement := perturbed - baseline
	if improvement < 0 {
		improvement = 0
	}
	if headroom := models.MaxExamScore - baseline; improvement > headroom {
		improvement = headroom
	}
	if improvement < 0 {
		// Baseline already above the scale ceiling leaves no headroom.
		improvement = 0
	}
	return improvement, nil
}

func (is *InterventionSimulator) predict(features map[string]float64) (float64, error) {
	record := models.StudentRecord{Features: features}
	vec, err := record.FeatureVector(is.layout)
	if err != nil {
		return 0, err
	}
	scaled, err := is.scaler.Transform(vec)
	if err != nil {
		return 0, err
	}
	return is.model.Predict(scaled)
}

func clampRange(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
