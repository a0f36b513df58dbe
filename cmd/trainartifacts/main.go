// trainartifacts fits the frozen model and scaler artifacts from a cohort
// CSV. The serving pipeline only ever loads these artifacts; it never refits.
package main

import (
	"flag"
	"fmt"
	"os"

	Input "github.com/parix-analytics/parix-go/pipelines/Input"
	ml "github.com/parix-analytics/parix-go/pipelines/ML"
	"github.com/parix-analytics/parix-go/pkg/models"
)

func main() {
	var (
		dataPath   = flag.String("data", "data/student_data.csv", "cohort CSV to train on")
		modelPath  = flag.String("model", "models/exam_model.json", "output path for the model artifact")
		scalerPath = flag.String("scaler", "models/scaler.json", "output path for the scaler artifact")
	)
	flag.Parse()

	if err := run(*dataPath, *modelPath, *scalerPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dataPath, modelPath, scalerPath string) error {
	loader := Input.NewCohortLoader()
	cohort, err := loader.LoadFile(dataPath)
	if err != nil {
		return err
	}

	layout := models.FeatureLayout()
	X := make([][]float64, len(cohort))
	y := make([]float64, len(cohort))
	for i, student := range cohort {
		vec, err := student.FeatureVector(layout)
		if err != nil {
			return err
		}
		X[i] = vec
		y[i] = student.ExamScore
	}

	scaler, err := ml.FitStandardScaler(X, layout)
	if err != nil {
		return fmt.Errorf("failed to fit scaler: %w", err)
	}

	scaled := make([][]float64, len(X))
	for i, row := range X {
		scaled[i], err = scaler.Transform(row)
		if err != nil {
			return err
		}
	}

	model, err := ml.FitLinearRegression(scaled, y, layout)
	if err != nil {
		return fmt.Errorf("failed to fit model: %w", err)
	}

	metrics, err := ml.EvaluateRegression(model, scaled, y)
	if err != nil {
		return fmt.Errorf("failed to evaluate model: %w", err)
	}

	if err := scaler.Save(scalerPath); err != nil {
		return err
	}
	if err := model.Save(modelPath); err != nil {
		return err
	}

	fmt.Printf("Trained on %d students\n", len(cohort))
	fmt.Printf("  RMSE: %.4f  MAE: %.4f  R^2: %.4f\n", metrics.RMSE, metrics.MAE, metrics.RSquared)
	fmt.Printf("  model:  %s\n", modelPath)
	fmt.Printf("  scaler: %s\n", scalerPath)
	return nil
}
