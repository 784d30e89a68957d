package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Proximal gradient defaults. The iteration stops once no coefficient
// moves by more than the tolerance.
const (
	defaultLogisticIters = 1000
	defaultLogisticTol   = 1e-5
)

// ElasticNetLogistic is a binary logistic regression fitted by proximal
// gradient descent under the elastic-net penalty
//
//	lambda * (alpha*||w||_1 + (1-alpha)/2*||w||_2^2)
//
// Alpha 0 is pure ridge, alpha 1 pure lasso. Features are standardized
// internally and the intercept is never penalized. A fit that does not
// converge within MaxIter returns an error instead of a half-trained
// model.
type ElasticNetLogistic struct {
	Alpha   float64
	Lambda  float64
	MaxIter int
	Tol     float64

	weights      []float64 // on the standardized scale
	intercept    float64
	means        []float64
	scales       []float64
	featureNames []string
}

// NewElasticNetLogistic creates a model for one penalty setting
func NewElasticNetLogistic(alpha, lambda float64) *ElasticNetLogistic {
	return &ElasticNetLogistic{
		Alpha:   alpha,
		Lambda:  lambda,
		MaxIter: defaultLogisticIters,
		Tol:     defaultLogisticTol,
	}
}

// Fit estimates the coefficients on the full dataset
func (lr *ElasticNetLogistic) Fit(X [][]float64, y []bool, featureNames []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X has %d rows but y has %d labels", len(X), len(y))
	}
	if len(featureNames) != len(X[0]) {
		return fmt.Errorf("%d feature names for %d columns", len(featureNames), len(X[0]))
	}
	if lr.Alpha < 0 || lr.Alpha > 1 {
		return fmt.Errorf("alpha %g outside [0, 1]", lr.Alpha)
	}
	if lr.Lambda < 0 {
		return fmt.Errorf("negative lambda %g", lr.Lambda)
	}
	if lr.MaxIter <= 0 {
		lr.MaxIter = defaultLogisticIters
	}
	if lr.Tol <= 0 {
		lr.Tol = defaultLogisticTol
	}

	n, d := len(X), len(X[0])
	lr.featureNames = featureNames
	lr.standardizeStats(X)

	// Standardized copy of the design matrix.
	Z := mat.NewDense(n, d, nil)
	for i, row := range X {
		for j, v := range row {
			Z.Set(i, j, (v-lr.means[j])/lr.scales[j])
		}
	}
	yv := make([]float64, n)
	for i, label := range y {
		if label {
			yv[i] = 1
		}
	}

	ridge := lr.Lambda * (1 - lr.Alpha)
	l1 := lr.Lambda * lr.Alpha

	// Step size from a Lipschitz bound of the penalized logistic
	// gradient: trace(Z'Z)/(4n) dominates the spectral norm term.
	trace := 0.0
	for j := 0; j < d; j++ {
		col := Z.ColView(j)
		trace += mat.Dot(col, col)
	}
	lip := trace/(4*float64(n)) + ridge
	if lip <= 0 {
		return fmt.Errorf("degenerate design matrix")
	}
	step := 1 / lip

	w := mat.NewVecDense(d, nil)
	b := 0.0
	margins := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(d, nil)

	for iter := 0; iter < lr.MaxIter; iter++ {
		margins.MulVec(Z, w)
		residSum := 0.0
		for i := 0; i < n; i++ {
			r := sigmoid(margins.AtVec(i)+b) - yv[i]
			resid.SetVec(i, r)
			residSum += r
		}

		grad.MulVec(Z.T(), resid)
		grad.ScaleVec(1/float64(n), grad)
		grad.AddScaledVec(grad, ridge, w)

		maxDelta := 0.0
		for j := 0; j < d; j++ {
			old := w.AtVec(j)
			next := softThreshold(old-step*grad.AtVec(j), step*l1)
			w.SetVec(j, next)
			if delta := math.Abs(next - old); delta > maxDelta {
				maxDelta = delta
			}
		}
		nextB := b - step*residSum/float64(n)
		if delta := math.Abs(nextB - b); delta > maxDelta {
			maxDelta = delta
		}
		b = nextB

		if maxDelta < lr.Tol {
			lr.weights = make([]float64, d)
			for j := 0; j < d; j++ {
				lr.weights[j] = w.AtVec(j)
			}
			lr.intercept = b
			return nil
		}
	}
	return fmt.Errorf("no convergence after %d iterations (alpha=%g lambda=%g)", lr.MaxIter, lr.Alpha, lr.Lambda)
}

// standardizeStats records each column's mean and standard deviation;
// constant columns keep scale 1 so they contribute nothing
func (lr *ElasticNetLogistic) standardizeStats(X [][]float64) {
	d := len(X[0])
	lr.means = make([]float64, d)
	lr.scales = make([]float64, d)
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		lr.means[j] = stat.Mean(col, nil)
		sd := 0.0
		if len(col) > 1 {
			sd = stat.StdDev(col, nil)
		}
		if sd == 0 {
			sd = 1
		}
		lr.scales[j] = sd
	}
}

// PredictProba applies the fitted coefficients to one row
func (lr *ElasticNetLogistic) PredictProba(x []float64) (float64, error) {
	if lr.weights == nil {
		return 0, fmt.Errorf("model is not fitted")
	}
	if len(x) != len(lr.weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(lr.weights), len(x))
	}
	margin := lr.intercept
	for j, v := range x {
		margin += lr.weights[j] * (v - lr.means[j]) / lr.scales[j]
	}
	return sigmoid(margin), nil
}

// Importance ranks features by the absolute size of their standardized
// coefficient
func (lr *ElasticNetLogistic) Importance() map[string]float64 {
	raw := make([]float64, len(lr.weights))
	for j, w := range lr.weights {
		raw[j] = math.Abs(w)
	}
	return normalizeImportance(lr.featureNames, raw)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}
