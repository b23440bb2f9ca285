package model

import (
	"fmt"
	"math"
	"sort"
)

// knnEstimator is a fitted k-nearest-neighbors classifier carrying its
// training matrix. The metric is fixed at load time to Manhattan (L1)
// or Euclidean (L2) distance; probabilities are neighbor vote
// fractions.
type knnEstimator struct {
	k      int
	metric string // "l1" or "l2"
	points [][]float64
	labels []int
}

func (e *knnEstimator) distance(a, b []float64) float64 {
	var s float64
	if e.metric == "l1" {
		for i := range a {
			s += math.Abs(a[i] - b[i])
		}
		return s
	}
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

func (e *knnEstimator) voteMalignant(x []float64) (float64, error) {
	if len(e.points) == 0 {
		return 0, fmt.Errorf("no training points")
	}
	if len(x) != len(e.points[0]) {
		return 0, fmt.Errorf("dimension mismatch: %d inputs, %d fitted", len(x), len(e.points[0]))
	}

	type neighbor struct {
		dist  float64
		label int
	}
	neighbors := make([]neighbor, len(e.points))
	for i, p := range e.points {
		neighbors[i] = neighbor{dist: e.distance(p, x), label: e.labels[i]}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].dist < neighbors[j].dist })

	k := e.k
	if k > len(neighbors) {
		k = len(neighbors)
	}
	votes := 0
	for _, n := range neighbors[:k] {
		if n.label == ClassMalignant {
			votes++
		}
	}
	return float64(votes) / float64(k), nil
}

func (e *knnEstimator) PredictProba(x []float64) ([]float64, error) {
	p, err := e.voteMalignant(x)
	if err != nil {
		return nil, err
	}
	return []float64{1 - p, p}, nil
}

func (e *knnEstimator) PredictClass(x []float64) (int, error) {
	p, err := e.voteMalignant(x)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return ClassMalignant, nil
	}
	return ClassBenign, nil
}
