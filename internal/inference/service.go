// Package inference orchestrates the scaler, model registry and metric
// store into the prediction operations: single-model, batch and
// multi-model consensus.
package inference

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"oncopredict/internal/artifact"
	"oncopredict/internal/features"
	"oncopredict/internal/metricstore"
	"oncopredict/internal/model"
	"oncopredict/internal/registry"
	"oncopredict/internal/scaler"
	"oncopredict/internal/storage"
)

// Prediction labels. The contract is exhaustive: class 1 is always
// "Malignant" and class 0 is always "Benign".
const (
	LabelMalignant = "Malignant"
	LabelBenign    = "Benign"
)

// MetricsSink defines the metrics methods the service reports to.
type MetricsSink interface {
	PredictionsInc()
	FailuresInc()
	LatencyObserve(float64)
	MalignantScoreObserve(float64)
	ConsensusRunsInc()
	ConsensusAgreementObserve(float64)
	CacheHitsInc()
	CacheMissesInc()
}

// Result is the response of a single-model prediction.
type Result struct {
	ModelName            string              `json:"model_name"`
	Prediction           int                 `json:"prediction"`
	PredictionLabel      string              `json:"prediction_label"`
	ProbabilityMalignant float64             `json:"probability_malignant"`
	ProbabilityBenign    float64             `json:"probability_benign"`
	Confidence           float64             `json:"confidence"`
	ProbabilityNative    bool                `json:"probability_is_native"`
	ModelMetrics         *metricstore.Metrics `json:"model_metrics,omitempty"`
}

// BatchItem carries one input's result or its own failure; items in a
// batch succeed or fail independently.
type BatchItem struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Health reports service readiness for the health endpoint.
type Health struct {
	ScalerReady     bool     `json:"scaler_ready"`
	ModelsReady     bool     `json:"models_ready"`
	AvailableModels []string `json:"available_models"`
}

// Config tunes the service.
type Config struct {
	DefaultModel string
	CacheSize    int
	CacheTTL     time.Duration
}

// Service implements the prediction operations over shared read-only
// resources. It is safe for concurrent use; per-request state never
// escapes the call.
type Service struct {
	cfg          Config
	artifacts    artifact.Source
	scaler       *scaler.Scaler
	registry     *registry.Registry
	modelMetrics *metricstore.Store
	history      *storage.Store // optional
	metrics      MetricsSink    // optional
	cache        *expirable.LRU[string, model.Outcome]
}

// New assembles a service. history and metrics may be nil.
func New(cfg Config, artifacts artifact.Source, sc *scaler.Scaler, reg *registry.Registry,
	mm *metricstore.Store, history *storage.Store, metrics MetricsSink,
) *Service {
	s := &Service{
		cfg:          cfg,
		artifacts:    artifacts,
		scaler:       sc,
		registry:     reg,
		modelMetrics: mm,
		history:      history,
		metrics:      metrics,
	}
	if cfg.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, model.Outcome](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s
}

// ListAvailableModels returns the names with artifacts on disk.
func (s *Service) ListAvailableModels() []string {
	return s.registry.Available()
}

// Health reports readiness without touching any model.
func (s *Service) Health() Health {
	available := s.registry.Available()
	return Health{
		ScalerReady:     s.scaler.Ready(),
		ModelsReady:     len(available) > 0,
		AvailableModels: available,
	}
}

// PredictOne classifies one input record with the named model. Missing
// feature names default to 0.0. An empty model name selects the
// configured default.
func (s *Service) PredictOne(ctx context.Context, input map[string]float64, modelName string) (*Result, error) {
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}
	if err := s.checkPreconditions(modelName); err != nil {
		return nil, err
	}

	res, err := s.predictVector(ctx, features.FromMap(input), modelName)
	if err != nil {
		return nil, err
	}
	s.recordHistory(res, false)
	return res, nil
}

// PredictVector classifies an already-ordered feature vector.
func (s *Service) PredictVector(ctx context.Context, vec features.Vector, modelName string) (*Result, error) {
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}
	if err := s.checkPreconditions(modelName); err != nil {
		return nil, err
	}

	res, err := s.predictVector(ctx, vec, modelName)
	if err != nil {
		return nil, err
	}
	s.recordHistory(res, false)
	return res, nil
}

// PredictBatch classifies each input independently: one record's
// failure is reported in its own slot and never aborts the rest.
// Preconditions (scaler loaded, model known) are checked once for the
// whole batch.
func (s *Service) PredictBatch(ctx context.Context, inputs []map[string]float64, modelName string) ([]BatchItem, error) {
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}
	if err := s.checkPreconditions(modelName); err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(inputs))
	for i, input := range inputs {
		items[i].Index = i
		res, err := s.predictVector(ctx, features.FromMap(input), modelName)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		s.recordHistory(res, false)
		items[i].Result = res
	}
	return items, nil
}

// ReloadScaler re-reads the scaler artifact and swaps it in atomically.
// In-flight predictions observe either the old or the new state, never
// a mix.
func (s *Service) ReloadScaler() error {
	return s.scaler.LoadFrom(s.artifacts)
}

// InvalidateModel drops the cached handle, metrics slice and result
// cache entries for a model after retrain.
func (s *Service) InvalidateModel(name string) {
	s.registry.Invalidate(name)
	s.modelMetrics.Invalidate(name)
	if s.cache != nil {
		prefix := name + "|"
		for _, k := range s.cache.Keys() {
			if strings.HasPrefix(k, prefix) {
				s.cache.Remove(k)
			}
		}
	}
}

func (s *Service) checkPreconditions(modelName string) error {
	if !s.scaler.Ready() {
		return &UnavailableError{Reason: "scaler not loaded"}
	}
	available := s.registry.Available()
	if !slices.Contains(available, modelName) {
		return &UnknownModelError{Name: modelName, Available: available}
	}
	return nil
}

// predictVector is the shared path: scale, dispatch, normalize, enrich.
// Preconditions are the caller's responsibility.
func (s *Service) predictVector(ctx context.Context, vec features.Vector, modelName string) (*Result, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.LatencyObserve(time.Since(start).Seconds())
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaled, err := s.scaler.Transform(vec)
	if err != nil {
		s.countFailure()
		return nil, err
	}

	outcome, ok := s.cachedOutcome(modelName, scaled)
	if !ok {
		handle, err := s.registry.GetOrLoad(modelName)
		if err != nil {
			s.countFailure()
			return nil, err
		}
		outcome, err = handle.Predict(scaled)
		if err != nil {
			s.countFailure()
			return nil, err
		}
		s.storeOutcome(modelName, scaled, outcome)
	}

	if s.metrics != nil {
		s.metrics.PredictionsInc()
		s.metrics.MalignantScoreObserve(outcome.ProbMalignant)
	}
	return s.assemble(modelName, outcome), nil
}

func (s *Service) assemble(modelName string, o model.Outcome) *Result {
	label := LabelBenign
	if o.Class == model.ClassMalignant {
		label = LabelMalignant
	}
	confidence := o.ProbMalignant
	if o.ProbBenign > confidence {
		confidence = o.ProbBenign
	}

	res := &Result{
		ModelName:            modelName,
		Prediction:           o.Class,
		PredictionLabel:      label,
		ProbabilityMalignant: o.ProbMalignant,
		ProbabilityBenign:    o.ProbBenign,
		Confidence:           confidence,
		ProbabilityNative:    o.ProbabilityNative,
	}
	if s.modelMetrics != nil {
		m := s.modelMetrics.Get(modelName)
		res.ModelMetrics = &m
	}
	return res
}

func (s *Service) countFailure() {
	if s.metrics != nil {
		s.metrics.FailuresInc()
	}
}

func (s *Service) recordHistory(res *Result, consensus bool) {
	if s.history == nil {
		return
	}
	rec := storage.PredictionRecord{
		Model:                res.ModelName,
		Timestamp:            time.Now(),
		Prediction:           res.Prediction,
		PredictionLabel:      res.PredictionLabel,
		ProbabilityMalignant: res.ProbabilityMalignant,
		Confidence:           res.Confidence,
		Consensus:            consensus,
	}
	if err := s.history.StorePrediction(rec); err != nil {
		log.Warn().Err(err).Str("model", res.ModelName).Msg("failed to store prediction record")
	}
}

func (s *Service) cachedOutcome(modelName string, scaled []float64) (model.Outcome, bool) {
	if s.cache == nil {
		return model.Outcome{}, false
	}
	o, ok := s.cache.Get(cacheKey(modelName, scaled))
	if s.metrics != nil {
		if ok {
			s.metrics.CacheHitsInc()
		} else {
			s.metrics.CacheMissesInc()
		}
	}
	return o, ok
}

func (s *Service) storeOutcome(modelName string, scaled []float64, o model.Outcome) {
	if s.cache == nil {
		return
	}
	s.cache.Add(cacheKey(modelName, scaled), o)
}

func cacheKey(modelName string, scaled []float64) string {
	var b strings.Builder
	b.WriteString(modelName)
	b.WriteByte('|')
	for i, v := range scaled {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
