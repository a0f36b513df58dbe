package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// FitLinearRegression fits an ordinary least squares model on standardized
// features. Offline training tool only; the service never refits.
func FitLinearRegression(X [][]float64, y []float64, featureNames []string) (*LinearModel, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("empty training data")
	}
	if n != len(y) {
		return nil, fmt.Errorf("X and y must have same number of samples")
	}
	cols := len(X[0])
	if cols == 0 {
		return nil, fmt.Errorf("training data has no features")
	}
	if len(featureNames) != cols {
		return nil, fmt.Errorf("feature names must match number of features")
	}
	if n <= cols {
		return nil, fmt.Errorf("need more than %d samples to fit %d features, got %d", cols, cols, n)
	}

	// Design matrix with a leading bias column.
	a := mat.NewDense(n, cols+1, nil)
	for i, row := range X {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewDense(n, 1, nil)
	for i, v := range y {
		b.Set(i, 0, v)
	}

	var qr mat.QR
	qr.Factorize(a)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, fmt.Errorf("least squares solve failed: %w", err)
	}

	weights := make([]float64, cols)
	for j := 0; j < cols; j++ {
		weights[j] = sol.At(j+1, 0)
	}

	return &LinearModel{
		FeatureNames: featureNames,
		Weights:      weights,
		Intercept:    sol.At(0, 0),
	}, nil
}

// RegressionMetrics summarizes goodness of fit on a holdout or training set
type RegressionMetrics struct {
	MSE      float64 `json:"mse"`
	RMSE     float64 `json:"rmse"`
	MAE      float64 `json:"mae"`
	RSquared float64 `json:"r_squared"`
	Samples  int     `json:"samples"`
}

// EvaluateRegression computes fit metrics for a model over a dataset
func EvaluateRegression(model Model, X [][]float64, y []float64) (*RegressionMetrics, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("X and y must be non-empty and of equal length")
	}

	preds := make([]float64, len(X))
	var mse, mae float64
	for i, row := range X {
		pred, err := model.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("prediction failed at index %d: %w", i, err)
		}
		preds[i] = pred
		d := y[i] - pred
		mse += d * d
		if d < 0 {
			d = -d
		}
		mae += d
	}
	n := float64(len(X))
	mse /= n
	mae /= n

	return &RegressionMetrics{
		MSE:      mse,
		RMSE:     math.Sqrt(mse),
		MAE:      mae,
		RSquared: stat.RSquaredFrom(preds, y, nil),
		Samples:  len(X),
	}, nil
}
