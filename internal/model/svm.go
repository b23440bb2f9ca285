package model

import (
	"fmt"
	"math"
)

// svmEstimator is a fitted support vector classifier. The decision
// function is sum_i alpha_i * K(sv_i, x) + b over the support vectors.
// When Platt coefficients were fitted (probA, probB) the estimator
// exposes a calibrated probability distribution; without them only the
// hard sign decision is available.
type svmEstimator struct {
	kernel         string // "rbf" or "linear"
	gamma          float64
	supportVectors [][]float64
	dualCoef       []float64
	intercept      float64

	// Platt scaling: p(malignant) = 1 / (1 + exp(probA*d + probB)).
	hasPlatt bool
	probA    float64
	probB    float64
}

func (e *svmEstimator) kernelValue(sv, x []float64) (float64, error) {
	if len(sv) != len(x) {
		return 0, fmt.Errorf("dimension mismatch: %d inputs, %d fitted", len(x), len(sv))
	}
	switch e.kernel {
	case "linear":
		var s float64
		for i := range sv {
			s += sv[i] * x[i]
		}
		return s, nil
	case "rbf":
		var s float64
		for i := range sv {
			d := sv[i] - x[i]
			s += d * d
		}
		return math.Exp(-e.gamma * s), nil
	default:
		return 0, fmt.Errorf("unsupported kernel %q", e.kernel)
	}
}

func (e *svmEstimator) decision(x []float64) (float64, error) {
	if len(e.supportVectors) == 0 {
		return 0, fmt.Errorf("no support vectors")
	}
	var d float64
	for i, sv := range e.supportVectors {
		k, err := e.kernelValue(sv, x)
		if err != nil {
			return 0, err
		}
		d += e.dualCoef[i] * k
	}
	return d + e.intercept, nil
}

func (e *svmEstimator) PredictClass(x []float64) (int, error) {
	d, err := e.decision(x)
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return ClassMalignant, nil
	}
	return ClassBenign, nil
}

func (e *svmEstimator) PredictProba(x []float64) ([]float64, error) {
	if !e.hasPlatt {
		return nil, fmt.Errorf("svm has no fitted probability calibration")
	}
	d, err := e.decision(x)
	if err != nil {
		return nil, err
	}
	p := 1.0 / (1.0 + math.Exp(e.probA*d+e.probB))
	return []float64{1 - p, p}, nil
}
