package model

import (
	"fmt"
	"math"
)

// gruExtractor is the feature-transform stage of a composite model: a
// gated recurrent unit that consumes the scaled vector as a sequence of
// scalar timesteps, followed by a dense projection. Its output width is
// fixed by the dense layer and must match what the downstream
// classifier was fitted on.
type gruExtractor struct {
	hidden int

	// Input, recurrent and bias weights for the update (z), reset (r)
	// and candidate (h) gates.
	wz, wr, wh []float64   // [hidden]
	uz, ur, uh [][]float64 // [hidden][hidden]
	bz, br, bh []float64   // [hidden]

	denseW [][]float64 // [out][hidden]
	denseB []float64   // [out]
}

func (e *gruExtractor) OutputDim() int { return len(e.denseB) }

func (e *gruExtractor) step(x float64, h []float64) []float64 {
	n := e.hidden
	next := make([]float64, n)
	for i := 0; i < n; i++ {
		var uzh, urh float64
		for j := 0; j < n; j++ {
			uzh += e.uz[i][j] * h[j]
			urh += e.ur[i][j] * h[j]
		}
		z := sigmoid(e.wz[i]*x + uzh + e.bz[i])
		r := sigmoid(e.wr[i]*x + urh + e.br[i])

		var uhh float64
		for j := 0; j < n; j++ {
			uhh += e.uh[i][j] * r * h[j]
		}
		cand := math.Tanh(e.wh[i]*x + uhh + e.bh[i])
		next[i] = (1-z)*h[i] + z*cand
	}
	return next
}

// Transform runs the sequence through the GRU and projects the final
// hidden state through the dense layer with relu.
func (e *gruExtractor) Transform(x []float64) ([]float64, error) {
	if e.hidden == 0 || len(e.denseB) == 0 {
		return nil, fmt.Errorf("extractor has no fitted weights")
	}
	h := make([]float64, e.hidden)
	for _, v := range x {
		h = e.step(v, h)
	}
	out, err := matvec(e.denseW, e.denseB, h)
	if err != nil {
		return nil, fmt.Errorf("dense projection: %w", err)
	}
	applyActivation(out, "relu")
	return out, nil
}
