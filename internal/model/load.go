package model

import (
	"fmt"

	"oncopredict/internal/artifact"
)

// Families recognized in standard model artifacts.
const (
	familyLinear   = "linear"
	familyLogistic = "logistic_regression"
	familySoftmax  = "softmax_regression"
	familyMLP      = "mlp"
	familyKNN      = "knn"
	familySVM      = "svm"
)

// modelArtifact is the serialized form of a standard (single-file)
// model. Family selects which parameter set is meaningful.
type modelArtifact struct {
	Family string `json:"family"`

	// linear / logistic
	Coef      []float64 `json:"coef,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`

	// softmax
	ClassCoef      [][]float64 `json:"class_coef,omitempty"`
	ClassIntercept []float64   `json:"class_intercept,omitempty"`

	// mlp
	Layers []struct {
		Weights    [][]float64 `json:"weights"`
		Bias       []float64   `json:"bias"`
		Activation string      `json:"activation"`
	} `json:"layers,omitempty"`
	OutActivation string `json:"out_activation,omitempty"`

	// knn
	K      int         `json:"k,omitempty"`
	Metric string      `json:"metric,omitempty"`
	Points [][]float64 `json:"points,omitempty"`
	Labels []int       `json:"labels,omitempty"`

	// svm
	Kernel         string      `json:"kernel,omitempty"`
	Gamma          float64     `json:"gamma,omitempty"`
	SupportVectors [][]float64 `json:"support_vectors,omitempty"`
	DualCoef       []float64   `json:"dual_coef,omitempty"`
	ProbA          *float64    `json:"prob_a,omitempty"`
	ProbB          *float64    `json:"prob_b,omitempty"`
}

// compositeMetadata records where the two stages of a composite model
// live. Paths may be absolute or relative to the artifact directory;
// the loader falls back to conventional same-directory names when a
// recorded path does not resolve.
type compositeMetadata struct {
	ModelType string `json:"model_type"`
	GRUPath   string `json:"gru_path"`
	SVMPath   string `json:"svm_path"`
}

// gruArtifact is the serialized stage-1 feature extractor of a
// composite model.
type gruArtifact struct {
	HiddenSize int         `json:"hidden_size"`
	WZ         []float64   `json:"w_z"`
	WR         []float64   `json:"w_r"`
	WH         []float64   `json:"w_h"`
	UZ         [][]float64 `json:"u_z"`
	UR         [][]float64 `json:"u_r"`
	UH         [][]float64 `json:"u_h"`
	BZ         []float64   `json:"b_z"`
	BR         []float64   `json:"b_r"`
	BH         []float64   `json:"b_h"`
	DenseW     [][]float64 `json:"dense_weights"`
	DenseB     []float64   `json:"dense_bias"`
}

// Load reconstructs a predictor handle from its persisted artifacts.
// The variant is decided here, once, from what the artifacts contain.
// A missing artifact is a NotFoundError; an artifact that decodes but
// cannot be reconstructed is a CorruptError.
func Load(store artifact.Source, name string) (Handle, error) {
	if store.Exists(artifact.CompositeMetadataFile(name)) {
		return loadComposite(store, name)
	}

	file := artifact.ModelFile(name)
	if !store.Exists(file) {
		return nil, &NotFoundError{Name: name}
	}

	var art modelArtifact
	if err := store.ReadJSON(file, &art); err != nil {
		return nil, &CorruptError{Name: name, Reason: err.Error()}
	}
	return buildStandard(name, &art)
}

func buildStandard(name string, art *modelArtifact) (Handle, error) {
	switch art.Family {
	case familyLinear:
		if len(art.Coef) == 0 {
			return nil, &CorruptError{Name: name, Reason: "linear model has no coefficients"}
		}
		return &ScoreThresholded{name: name, est: &linearEstimator{coef: art.Coef, intercept: art.Intercept}}, nil

	case familyLogistic:
		if len(art.Coef) == 0 {
			return nil, &CorruptError{Name: name, Reason: "logistic model has no coefficients"}
		}
		est := &logisticEstimator{coef: art.Coef, intercept: art.Intercept}
		return &Probabilistic{name: name, cls: est, prob: est}, nil

	case familySoftmax:
		if len(art.ClassCoef) != 2 || len(art.ClassIntercept) != 2 {
			return nil, &CorruptError{Name: name, Reason: "softmax model needs weights for exactly 2 classes"}
		}
		est := &softmaxEstimator{coef: art.ClassCoef, intercept: art.ClassIntercept}
		return &Probabilistic{name: name, cls: est, prob: est}, nil

	case familyMLP:
		if len(art.Layers) == 0 {
			return nil, &CorruptError{Name: name, Reason: "mlp model has no layers"}
		}
		est := &mlpEstimator{outActivation: art.OutActivation}
		for i, l := range art.Layers {
			if len(l.Weights) != len(l.Bias) {
				return nil, &CorruptError{Name: name,
					Reason: fmt.Sprintf("mlp layer %d weight/bias shape mismatch", i)}
			}
			est.layers = append(est.layers, mlpLayer{weights: l.Weights, bias: l.Bias, activation: l.Activation})
		}
		return &Probabilistic{name: name, cls: est, prob: est}, nil

	case familyKNN:
		if len(art.Points) == 0 || len(art.Points) != len(art.Labels) {
			return nil, &CorruptError{Name: name, Reason: "knn model points/labels missing or mismatched"}
		}
		if art.K <= 0 {
			return nil, &CorruptError{Name: name, Reason: "knn model has non-positive k"}
		}
		if art.Metric != "l1" && art.Metric != "l2" {
			return nil, &CorruptError{Name: name, Reason: fmt.Sprintf("knn metric %q unsupported", art.Metric)}
		}
		width := len(art.Points[0])
		for i, p := range art.Points {
			if len(p) != width {
				return nil, &CorruptError{Name: name,
					Reason: fmt.Sprintf("knn point %d has %d features, expected %d", i, len(p), width)}
			}
		}
		est := &knnEstimator{k: art.K, metric: art.Metric, points: art.Points, labels: art.Labels}
		return &Probabilistic{name: name, cls: est, prob: est}, nil

	case familySVM:
		est, err := buildSVM(name, art)
		if err != nil {
			return nil, err
		}
		// Without Platt calibration the SVM only has a hard decision;
		// the handle then reports the degenerate non-native distribution.
		if est.hasPlatt {
			return &Probabilistic{name: name, cls: est, prob: est}, nil
		}
		return &Probabilistic{name: name, cls: est}, nil

	default:
		return nil, &CorruptError{Name: name, Reason: fmt.Sprintf("unknown model family %q", art.Family)}
	}
}

func buildSVM(name string, art *modelArtifact) (*svmEstimator, error) {
	if len(art.SupportVectors) == 0 || len(art.SupportVectors) != len(art.DualCoef) {
		return nil, &CorruptError{Name: name, Reason: "svm support vectors/dual coefficients missing or mismatched"}
	}
	if art.Kernel != "rbf" && art.Kernel != "linear" {
		return nil, &CorruptError{Name: name, Reason: fmt.Sprintf("svm kernel %q unsupported", art.Kernel)}
	}
	est := &svmEstimator{
		kernel:         art.Kernel,
		gamma:          art.Gamma,
		supportVectors: art.SupportVectors,
		dualCoef:       art.DualCoef,
		intercept:      art.Intercept,
	}
	if art.ProbA != nil && art.ProbB != nil {
		est.hasPlatt = true
		est.probA = *art.ProbA
		est.probB = *art.ProbB
	}
	return est, nil
}

func loadComposite(store artifact.Source, name string) (Handle, error) {
	var meta compositeMetadata
	if err := store.ReadJSON(artifact.CompositeMetadataFile(name), &meta); err != nil {
		return nil, &CorruptError{Name: name, Reason: err.Error()}
	}

	gruPath := resolveStagePath(store, meta.GRUPath, name, "gru")
	if gruPath == "" {
		return nil, &CorruptError{Name: name, Reason: "feature extractor stage artifact missing"}
	}
	svmPath := resolveStagePath(store, meta.SVMPath, name, "svm")
	if svmPath == "" {
		return nil, &CorruptError{Name: name, Reason: "classifier stage artifact missing"}
	}

	var gru gruArtifact
	if err := store.ReadJSON(gruPath, &gru); err != nil {
		return nil, &CorruptError{Name: name, Reason: err.Error()}
	}
	extractor, err := buildGRU(name, &gru)
	if err != nil {
		return nil, err
	}

	var svmArt modelArtifact
	if err := store.ReadJSON(svmPath, &svmArt); err != nil {
		return nil, &CorruptError{Name: name, Reason: err.Error()}
	}
	svm, err := buildSVM(name, &svmArt)
	if err != nil {
		return nil, err
	}
	if !svm.hasPlatt {
		return nil, &CorruptError{Name: name, Reason: "composite classifier stage has no probability calibration"}
	}

	return &Composite{name: name, extractor: extractor, classifier: svm}, nil
}

// resolveStagePath prefers the path recorded in metadata and falls back
// to the conventional same-directory name.
func resolveStagePath(store artifact.Source, recorded, name, stage string) string {
	if recorded != "" && store.Exists(recorded) {
		return recorded
	}
	conventional := artifact.CompositeStageFile(name, stage)
	if store.Exists(conventional) {
		return conventional
	}
	return ""
}

func buildGRU(name string, art *gruArtifact) (*gruExtractor, error) {
	n := art.HiddenSize
	if n <= 0 {
		return nil, &CorruptError{Name: name, Reason: "gru stage has non-positive hidden size"}
	}
	for label, v := range map[string]int{
		"w_z": len(art.WZ), "w_r": len(art.WR), "w_h": len(art.WH),
		"u_z": len(art.UZ), "u_r": len(art.UR), "u_h": len(art.UH),
		"b_z": len(art.BZ), "b_r": len(art.BR), "b_h": len(art.BH),
	} {
		if v != n {
			return nil, &CorruptError{Name: name,
				Reason: fmt.Sprintf("gru stage %s length %d does not match hidden size %d", label, v, n)}
		}
	}
	// The outer lengths above say nothing about row widths; a ragged
	// recurrent matrix would index out of range mid-prediction.
	for label, m := range map[string][][]float64{"u_z": art.UZ, "u_r": art.UR, "u_h": art.UH} {
		for i, row := range m {
			if len(row) != n {
				return nil, &CorruptError{Name: name,
					Reason: fmt.Sprintf("gru stage %s row %d length %d does not match hidden size %d", label, i, len(row), n)}
			}
		}
	}
	if len(art.DenseW) == 0 || len(art.DenseW) != len(art.DenseB) {
		return nil, &CorruptError{Name: name, Reason: "gru stage dense projection missing or mismatched"}
	}
	for i, row := range art.DenseW {
		if len(row) != n {
			return nil, &CorruptError{Name: name,
				Reason: fmt.Sprintf("gru stage dense row %d length %d does not match hidden size %d", i, len(row), n)}
		}
	}
	return &gruExtractor{
		hidden: n,
		wz:     art.WZ, wr: art.WR, wh: art.WH,
		uz: art.UZ, ur: art.UR, uh: art.UH,
		bz: art.BZ, br: art.BR, bh: art.BH,
		denseW: art.DenseW, denseB: art.DenseB,
	}, nil
}
