// Package scaler applies the fitted feature-standardization transform
// to raw feature vectors before any model sees them.
package scaler

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"oncopredict/internal/artifact"
	"oncopredict/internal/features"
)

// State holds the fitted parameters of a standardization transform:
// per-feature center and scale. It is immutable after load.
type State struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (st *State) validate() error {
	if len(st.Mean) == 0 {
		return fmt.Errorf("scaler state has no fitted parameters")
	}
	if len(st.Mean) != len(st.Scale) {
		return fmt.Errorf("scaler mean/scale length mismatch: %d vs %d", len(st.Mean), len(st.Scale))
	}
	for i, s := range st.Scale {
		if s == 0 {
			return fmt.Errorf("scaler scale[%d] is zero", i)
		}
	}
	return nil
}

// Scaler wraps the current State. In-flight transforms always observe a
// fully-old or fully-new state; Swap replaces the whole state
// atomically and never mutates it in place.
type Scaler struct {
	state atomic.Pointer[State]
}

// New returns a Scaler with no fitted state loaded.
func New() *Scaler { return &Scaler{} }

// Ready reports whether a fitted state is loaded.
func (s *Scaler) Ready() bool { return s.state.Load() != nil }

// Dim returns the fitted dimensionality, or 0 when not ready.
func (s *Scaler) Dim() int {
	st := s.state.Load()
	if st == nil {
		return 0
	}
	return len(st.Mean)
}

// Swap installs a new fitted state after validating it.
func (s *Scaler) Swap(st *State) error {
	if err := st.validate(); err != nil {
		return err
	}
	s.state.Store(st)
	return nil
}

// Transform standardizes a raw vector using the loaded state. The
// vector length must equal the fitted dimensionality; a mismatch is a
// ShapeError, never a silent truncation or pad.
func (s *Scaler) Transform(v features.Vector) ([]float64, error) {
	st := s.state.Load()
	if st == nil {
		return nil, fmt.Errorf("scaler not loaded")
	}
	raw := v.Values()
	if len(raw) != len(st.Mean) {
		return nil, &features.ShapeError{Want: len(st.Mean), Got: len(raw)}
	}
	out := make([]float64, len(raw))
	for i, x := range raw {
		out[i] = (x - st.Mean[i]) / st.Scale[i]
	}
	return out, nil
}

// LoadFrom reads the conventional scaler artifact and installs it.
// A missing artifact is reported to the caller; the scaler simply stays
// not-ready so the service can report degraded health instead of
// crashing.
func (s *Scaler) LoadFrom(store artifact.Source) error {
	if !store.Exists(artifact.ScalerFile) {
		return fmt.Errorf("scaler artifact %s not found", artifact.ScalerFile)
	}
	var st State
	if err := store.ReadJSON(artifact.ScalerFile, &st); err != nil {
		return err
	}
	if err := s.Swap(&st); err != nil {
		return fmt.Errorf("invalid scaler artifact: %w", err)
	}
	log.Info().Int("dim", len(st.Mean)).Msg("scaler loaded")
	return nil
}
