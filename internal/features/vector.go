// Package features defines the fixed 30-feature input schema for tumor
// classification and the ordered vector every model consumes.
//
// The name-to-position mapping is fixed at package level and shared by
// scaling, prediction and metric lookups. Vectors are immutable once built.
package features

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Count is the number of cell-measurement features in the schema.
const Count = 30

// Names lists the schema in canonical order: ten mean values, ten
// standard errors, ten "worst" values, matching the standard breast
// cancer dataset columns.
var Names = [Count]string{
	"radius_mean", "texture_mean", "perimeter_mean", "area_mean",
	"smoothness_mean", "compactness_mean", "concavity_mean",
	"concave points_mean", "symmetry_mean", "fractal_dimension_mean",
	"radius_se", "texture_se", "perimeter_se", "area_se",
	"smoothness_se", "compactness_se", "concavity_se",
	"concave points_se", "symmetry_se", "fractal_dimension_se",
	"radius_worst", "texture_worst", "perimeter_worst", "area_worst",
	"smoothness_worst", "compactness_worst", "concavity_worst",
	"concave points_worst", "symmetry_worst", "fractal_dimension_worst",
}

var nameIndex = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range Names {
		m[n] = i
	}
	return m
}()

// ShapeError reports a feature count mismatch. It is fatal to the
// request it occurs in and is never silently corrected.
type ShapeError struct {
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected %d features, got %d", e.Want, e.Got)
}

// Vector is an ordered, fixed-length record of the 30 features.
type Vector struct {
	values [Count]float64
}

// FromMap builds a Vector from a loosely-typed input record. Any schema
// name absent from the input defaults to 0.0; this is deliberate policy
// and the missing names are logged. Keys outside the schema are ignored.
func FromMap(input map[string]float64) Vector {
	var v Vector
	var missing []string
	for i, name := range Names {
		val, ok := input[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		v.values[i] = val
	}
	if len(missing) > 0 {
		log.Debug().
			Int("missing_count", len(missing)).
			Strs("missing", missing).
			Msg("input record missing features, defaulting to 0.0")
	}
	return v
}

// FromSlice builds a Vector from values already in schema order.
// Returns a ShapeError unless exactly Count values are given.
func FromSlice(values []float64) (Vector, error) {
	if len(values) != Count {
		return Vector{}, &ShapeError{Want: Count, Got: len(values)}
	}
	var v Vector
	copy(v.values[:], values)
	return v, nil
}

// Values returns a copy of the ordered feature values.
func (v Vector) Values() []float64 {
	out := make([]float64, Count)
	copy(out, v.values[:])
	return out
}

// Value returns the value at a named position and whether the name is
// part of the schema.
func (v Vector) Value(name string) (float64, bool) {
	i, ok := nameIndex[name]
	if !ok {
		return 0, false
	}
	return v.values[i], true
}
