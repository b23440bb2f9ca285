package model

import (
	"fmt"
	"math"
)

// mlpLayer is one fully-connected layer: out = act(W*x + b).
type mlpLayer struct {
	weights    [][]float64 // [out][in]
	bias       []float64   // [out]
	activation string      // "relu", "tanh", "identity", "sigmoid"
}

// mlpEstimator is a fitted multi-layer perceptron classifier. The
// output layer is either a single sigmoid unit or a two-unit softmax;
// both yield a native two-class distribution.
type mlpEstimator struct {
	layers        []mlpLayer
	outActivation string // "sigmoid" or "softmax"
}

func (e *mlpEstimator) forward(x []float64) ([]float64, error) {
	h := x
	for i, layer := range e.layers {
		next, err := matvec(layer.weights, layer.bias, h)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		applyActivation(next, layer.activation)
		h = next
	}
	return h, nil
}

func (e *mlpEstimator) PredictProba(x []float64) ([]float64, error) {
	out, err := e.forward(x)
	if err != nil {
		return nil, err
	}
	switch e.outActivation {
	case "softmax":
		if len(out) != 2 {
			return nil, fmt.Errorf("softmax output layer has %d units, want 2", len(out))
		}
		return softmax(out), nil
	case "sigmoid":
		if len(out) != 1 {
			return nil, fmt.Errorf("sigmoid output layer has %d units, want 1", len(out))
		}
		p := sigmoid(out[0])
		return []float64{1 - p, p}, nil
	default:
		return nil, fmt.Errorf("unsupported output activation %q", e.outActivation)
	}
}

func (e *mlpEstimator) PredictClass(x []float64) (int, error) {
	dist, err := e.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if dist[1] >= 0.5 {
		return ClassMalignant, nil
	}
	return ClassBenign, nil
}

func matvec(w [][]float64, b, x []float64) ([]float64, error) {
	if len(w) != len(b) {
		return nil, fmt.Errorf("weight rows %d do not match bias length %d", len(w), len(b))
	}
	out := make([]float64, len(w))
	for i, row := range w {
		s, err := dot(row, x)
		if err != nil {
			return nil, err
		}
		out[i] = s + b[i]
	}
	return out, nil
}

func applyActivation(v []float64, name string) {
	switch name {
	case "relu":
		for i, x := range v {
			if x < 0 {
				v[i] = 0
			}
		}
	case "tanh":
		for i, x := range v {
			v[i] = math.Tanh(x)
		}
	case "sigmoid":
		for i, x := range v {
			v[i] = sigmoid(x)
		}
	default: // identity
	}
}
