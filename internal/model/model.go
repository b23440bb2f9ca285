// Package model implements the predictor abstraction: a closed set of
// tagged variants that turn a scaled feature vector into the uniform
// (class, probability-of-malignant) contract regardless of the
// underlying model family.
//
// Variant selection happens once, at load time, based on which
// artifacts and parameters are present. Prediction never re-probes
// capabilities.
package model

import (
	"fmt"
	"math"
)

// Class labels for the binary decision.
const (
	ClassBenign    = 0
	ClassMalignant = 1
)

// Kind tags the predictor variant decided at load time.
type Kind string

const (
	// KindProbabilistic wraps a model with a hard class decision and,
	// when fitted for it, a native class-probability distribution.
	KindProbabilistic Kind = "probabilistic"
	// KindScoreThresholded wraps a continuous-output model; the class
	// is score >= 0.5 and the probability is a logistic squash of the
	// raw score.
	KindScoreThresholded Kind = "score_thresholded"
	// KindComposite is a two-stage pipeline: a feature-transform stage
	// feeding a probabilistic classifier stage.
	KindComposite Kind = "composite"
)

// Outcome is the normalized result every variant produces.
//
// ProbMalignant + ProbBenign always sum to 1 within floating-point
// tolerance. ProbabilityNative is true only when the underlying model
// produced a measured probability distribution; a false value marks
// the probability as derived (logistic squash of a raw score) or
// fabricated (degenerate 1.0/0.0 from a hard label) and callers should
// not over-trust the implied confidence.
type Outcome struct {
	Class             int
	ProbMalignant     float64
	ProbBenign        float64
	ProbabilityNative bool
}

// Handle is the uniform contract over all predictor variants:
// scaled features in, normalized outcome out.
type Handle interface {
	Name() string
	Kind() Kind
	Predict(scaled []float64) (Outcome, error)
}

// PredictionError wraps a native inference failure with enough context
// to diagnose which model and stage failed.
type PredictionError struct {
	Model string
	Stage string
	Err   error
}

func (e *PredictionError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("model %s: stage %s: %v", e.Model, e.Stage, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// NotFoundError reports that no artifact exists for a model at its
// conventional path. It signals expected absence (not trained yet),
// not breakage.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %s not found: no artifact at conventional path", e.Name)
}

// CorruptError reports an artifact that exists but cannot be
// reconstructed into a working predictor. It needs operator attention.
type CorruptError struct {
	Name   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("model %s artifact corrupt: %s", e.Name, e.Reason)
}

// classifier is the native hard-decision call of a wrapped model.
type classifier interface {
	PredictClass(x []float64) (int, error)
}

// probClassifier additionally exposes a class-probability distribution
// as [probBenign, probMalignant].
type probClassifier interface {
	classifier
	PredictProba(x []float64) ([]float64, error)
}

// scorer is the native call of a continuous-output model.
type scorer interface {
	Score(x []float64) (float64, error)
}

// transformer is the stage-1 feature extractor of a composite model.
// Its output dimensionality is fixed at load time.
type transformer interface {
	Transform(x []float64) ([]float64, error)
	OutputDim() int
}

// Probabilistic dispatches to a model with a hard class decision and,
// when available, a native probability distribution. Without one the
// hard label degenerates to a 1.0/0.0 distribution flagged as
// non-native.
type Probabilistic struct {
	name string
	cls  classifier
	prob probClassifier // nil when the model has no fitted probabilities
}

func (p *Probabilistic) Name() string { return p.name }
func (p *Probabilistic) Kind() Kind   { return KindProbabilistic }

func (p *Probabilistic) Predict(scaled []float64) (Outcome, error) {
	class, err := p.cls.PredictClass(scaled)
	if err != nil {
		return Outcome{}, &PredictionError{Model: p.name, Err: err}
	}

	if p.prob == nil {
		return degenerate(class), nil
	}

	dist, err := p.prob.PredictProba(scaled)
	if err != nil {
		return Outcome{}, &PredictionError{Model: p.name, Err: err}
	}
	if len(dist) != 2 {
		return Outcome{}, &PredictionError{Model: p.name,
			Err: fmt.Errorf("expected 2 class probabilities, got %d", len(dist))}
	}
	benign, malignant := normalizePair(dist[0], dist[1])
	return Outcome{
		Class:             class,
		ProbMalignant:     malignant,
		ProbBenign:        benign,
		ProbabilityNative: true,
	}, nil
}

// ScoreThresholded dispatches to a continuous-output model. The class
// decision is score >= 0.5 and the probability is sigmoid(score): a
// fixed monotonic map that works for a single sample, unlike min-max
// normalization which needs a reference batch.
type ScoreThresholded struct {
	name string
	est  scorer
}

func (p *ScoreThresholded) Name() string { return p.name }
func (p *ScoreThresholded) Kind() Kind   { return KindScoreThresholded }

func (p *ScoreThresholded) Predict(scaled []float64) (Outcome, error) {
	score, err := p.est.Score(scaled)
	if err != nil {
		return Outcome{}, &PredictionError{Model: p.name, Err: err}
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Outcome{}, &PredictionError{Model: p.name,
			Err: fmt.Errorf("score is not finite: %v", score)}
	}

	class := ClassBenign
	if score >= 0.5 {
		class = ClassMalignant
	}
	prob := sigmoid(score)
	return Outcome{
		Class:             class,
		ProbMalignant:     prob,
		ProbBenign:        1 - prob,
		ProbabilityNative: false,
	}, nil
}

// Composite runs a feature-transform stage and feeds its fixed-width
// output to a probabilistic classifier stage.
type Composite struct {
	name       string
	extractor  transformer
	classifier probClassifier
}

func (p *Composite) Name() string { return p.name }
func (p *Composite) Kind() Kind   { return KindComposite }

func (p *Composite) Predict(scaled []float64) (Outcome, error) {
	intermediate, err := p.extractor.Transform(scaled)
	if err != nil {
		return Outcome{}, &PredictionError{Model: p.name, Stage: "feature_extractor", Err: err}
	}
	if len(intermediate) != p.extractor.OutputDim() {
		return Outcome{}, &PredictionError{Model: p.name, Stage: "feature_extractor",
			Err: fmt.Errorf("expected %d intermediate features, got %d", p.extractor.OutputDim(), len(intermediate))}
	}

	class, err := p.classifier.PredictClass(intermediate)
	if err != nil {
		return Outcome{}, &PredictionError{Model: p.name, Stage: "classifier", Err: err}
	}
	dist, err := p.classifier.PredictProba(intermediate)
	if err != nil {
		return Outcome{}, &PredictionError{Model: p.name, Stage: "classifier", Err: err}
	}
	if len(dist) != 2 {
		return Outcome{}, &PredictionError{Model: p.name, Stage: "classifier",
			Err: fmt.Errorf("expected 2 class probabilities, got %d", len(dist))}
	}
	benign, malignant := normalizePair(dist[0], dist[1])
	return Outcome{
		Class:             class,
		ProbMalignant:     malignant,
		ProbBenign:        benign,
		ProbabilityNative: true,
	}, nil
}

// degenerate turns a hard label into a 1.0/0.0 distribution. This is
// the only place fabricated certainty enters; the non-native flag keeps
// it distinguishable from a measured probability.
func degenerate(class int) Outcome {
	o := Outcome{Class: class, ProbBenign: 1}
	if class == ClassMalignant {
		o.ProbMalignant = 1
		o.ProbBenign = 0
	}
	return o
}

// normalizePair rescales two non-negative masses to sum to exactly 1.
func normalizePair(benign, malignant float64) (float64, float64) {
	sum := benign + malignant
	if sum <= 0 {
		return 0.5, 0.5
	}
	return benign / sum, malignant / sum
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
