package model

import (
	"fmt"
	"math"
)

// linearEstimator is a fitted linear regressor: score = w·x + b.
// Its continuous output backs the score-thresholded variant.
type linearEstimator struct {
	coef      []float64
	intercept float64
}

func (e *linearEstimator) Score(x []float64) (float64, error) {
	s, err := dot(e.coef, x)
	if err != nil {
		return 0, err
	}
	return s + e.intercept, nil
}

// logisticEstimator is a fitted binary logistic regression with a
// native probability distribution.
type logisticEstimator struct {
	coef      []float64
	intercept float64
}

func (e *logisticEstimator) probMalignant(x []float64) (float64, error) {
	s, err := dot(e.coef, x)
	if err != nil {
		return 0, err
	}
	return sigmoid(s + e.intercept), nil
}

func (e *logisticEstimator) PredictClass(x []float64) (int, error) {
	p, err := e.probMalignant(x)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return ClassMalignant, nil
	}
	return ClassBenign, nil
}

func (e *logisticEstimator) PredictProba(x []float64) ([]float64, error) {
	p, err := e.probMalignant(x)
	if err != nil {
		return nil, err
	}
	return []float64{1 - p, p}, nil
}

// softmaxEstimator is a fitted two-class softmax regression: one weight
// row per class, probabilities from the softmax of the class logits.
type softmaxEstimator struct {
	coef      [][]float64 // [class][feature]
	intercept []float64   // [class]
}

func (e *softmaxEstimator) logits(x []float64) ([]float64, error) {
	out := make([]float64, len(e.coef))
	for c, row := range e.coef {
		s, err := dot(row, x)
		if err != nil {
			return nil, err
		}
		out[c] = s + e.intercept[c]
	}
	return out, nil
}

func (e *softmaxEstimator) PredictClass(x []float64) (int, error) {
	dist, err := e.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if dist[1] >= dist[0] {
		return ClassMalignant, nil
	}
	return ClassBenign, nil
}

func (e *softmaxEstimator) PredictProba(x []float64) ([]float64, error) {
	logits, err := e.logits(x)
	if err != nil {
		return nil, err
	}
	return softmax(logits), nil
}

func dot(w, x []float64) (float64, error) {
	if len(w) != len(x) {
		return 0, fmt.Errorf("dimension mismatch: %d weights, %d inputs", len(w), len(x))
	}
	var s float64
	for i := range w {
		s += w[i] * x[i]
	}
	return s, nil
}

// softmax computes the stable softmax of a logit vector.
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
