package inference

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"oncopredict/internal/artifact"
	"oncopredict/internal/features"
	"oncopredict/internal/metricstore"
	"oncopredict/internal/registry"
	"oncopredict/internal/scaler"
)

// canonicalMalignant is a known malignant observation from the standard
// dataset, in schema order.
var canonicalMalignant = []float64{
	17.99, 10.38, 122.8, 1001.0, 0.1184, 0.2776, 0.3001, 0.1471, 0.2419,
	0.07871, 1.095, 0.9053, 8.589, 153.4, 0.006399, 0.04904, 0.05373,
	0.01587, 0.03003, 0.006193, 25.38, 17.33, 184.6, 2019.0, 0.1622,
	0.6656, 0.7119, 0.2654, 0.4601, 0.1189,
}

func canonicalMalignantMap() map[string]float64 {
	m := make(map[string]float64, features.Count)
	for i, n := range features.Names {
		m[n] = canonicalMalignant[i]
	}
	return m
}

// identityScaler writes a pass-through scaler artifact.
func identityScaler(t *testing.T, store *artifact.Store) {
	t.Helper()
	st := scaler.State{
		Mean:  make([]float64, features.Count),
		Scale: make([]float64, features.Count),
	}
	for i := range st.Scale {
		st.Scale[i] = 1
	}
	if err := store.WriteJSON(artifact.ScalerFile, &st); err != nil {
		t.Fatalf("write scaler: %v", err)
	}
}

// areaWorstLogistic writes a logistic model keyed off area_worst
// (position 23): p = sigmoid(0.01*area_worst - 15). The canonical
// malignant record has area_worst 2019, so p = sigmoid(5.19) ~ 0.994.
func areaWorstLogistic(t *testing.T, store *artifact.Store, name string) {
	t.Helper()
	coef := make([]float64, features.Count)
	coef[23] = 0.01
	art := map[string]any{
		"family":    "logistic_regression",
		"coef":      coef,
		"intercept": -15.0,
	}
	if err := store.WriteJSON(artifact.ModelFile(name), art); err != nil {
		t.Fatalf("write model %s: %v", name, err)
	}
}

// brokenModel writes an artifact that decodes but cannot be rebuilt.
func brokenModel(t *testing.T, store *artifact.Store, name string) {
	t.Helper()
	art := map[string]any{"family": "linear"}
	if err := store.WriteJSON(artifact.ModelFile(name), art); err != nil {
		t.Fatalf("write model %s: %v", name, err)
	}
}

// recordingSink counts every MetricsSink call.
type recordingSink struct {
	mu          sync.Mutex
	predictions int
	failures    int
	latencies   int
	scores      []float64
	consensus   int
	agreements  []float64
	hits        int
	misses      int
}

func (r *recordingSink) PredictionsInc() { r.mu.Lock(); r.predictions++; r.mu.Unlock() }
func (r *recordingSink) FailuresInc()    { r.mu.Lock(); r.failures++; r.mu.Unlock() }
func (r *recordingSink) LatencyObserve(float64) {
	r.mu.Lock()
	r.latencies++
	r.mu.Unlock()
}
func (r *recordingSink) MalignantScoreObserve(p float64) {
	r.mu.Lock()
	r.scores = append(r.scores, p)
	r.mu.Unlock()
}
func (r *recordingSink) ConsensusRunsInc() { r.mu.Lock(); r.consensus++; r.mu.Unlock() }
func (r *recordingSink) ConsensusAgreementObserve(v float64) {
	r.mu.Lock()
	r.agreements = append(r.agreements, v)
	r.mu.Unlock()
}
func (r *recordingSink) CacheHitsInc()   { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *recordingSink) CacheMissesInc() { r.mu.Lock(); r.misses++; r.mu.Unlock() }

type serviceOpts struct {
	cfg  Config
	sink MetricsSink
}

func newTestService(t *testing.T, opts serviceOpts, setup func(store *artifact.Store)) *Service {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if setup != nil {
		setup(store)
	}

	sc := scaler.New()
	// Missing scaler artifact leaves the service degraded, which some
	// tests exercise on purpose.
	_ = sc.LoadFrom(store)

	if opts.cfg.DefaultModel == "" {
		opts.cfg.DefaultModel = "logistic_regression"
	}
	return New(opts.cfg, store, sc, registry.New(store), metricstore.New(store), nil, opts.sink)
}

func TestPredictOneCanonicalMalignant(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	res, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), "")
	if err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}

	if res.Prediction != 1 {
		t.Errorf("expected malignant class 1, got %d", res.Prediction)
	}
	if res.PredictionLabel != LabelMalignant {
		t.Errorf("expected label %q, got %q", LabelMalignant, res.PredictionLabel)
	}
	want := 1.0 / (1.0 + math.Exp(-(0.01*2019.0 - 15.0)))
	if math.Abs(res.ProbabilityMalignant-want) > 1e-9 {
		t.Errorf("expected probability %v, got %v", want, res.ProbabilityMalignant)
	}
	if math.Abs(res.ProbabilityMalignant+res.ProbabilityBenign-1) > 1e-9 {
		t.Error("probabilities do not sum to 1")
	}
	if !res.ProbabilityNative {
		t.Error("logistic probability should be native")
	}
	if res.Confidence != res.ProbabilityMalignant {
		t.Errorf("confidence should be the larger class probability, got %v", res.Confidence)
	}
	if res.ModelName != "logistic_regression" {
		t.Errorf("expected default model name, got %q", res.ModelName)
	}
}

func TestPredictOneLabelContract(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	// area_worst 2019 drives p above 0.5, 100 keeps it near zero.
	tests := []struct {
		areaWorst float64
		wantClass int
		wantLabel string
	}{
		{2019, 1, LabelMalignant},
		{100, 0, LabelBenign},
	}
	for _, tt := range tests {
		res, err := svc.PredictOne(context.Background(),
			map[string]float64{"area_worst": tt.areaWorst}, "")
		if err != nil {
			t.Fatalf("PredictOne failed: %v", err)
		}
		if res.Prediction != tt.wantClass || res.PredictionLabel != tt.wantLabel {
			t.Errorf("area_worst=%v: got class %d label %q", tt.areaWorst, res.Prediction, res.PredictionLabel)
		}
	}
}

func TestPredictOneIdempotent(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	input := canonicalMalignantMap()
	first, err := svc.PredictOne(context.Background(), input, "")
	if err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		res, err := svc.PredictOne(context.Background(), input, "")
		if err != nil {
			t.Fatalf("PredictOne failed: %v", err)
		}
		if res.ProbabilityMalignant != first.ProbabilityMalignant || res.Prediction != first.Prediction {
			t.Fatalf("prediction changed between identical calls: %+v vs %+v", res, first)
		}
	}
}

func TestPredictOneScalerMissing(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		areaWorstLogistic(t, store, "logistic_regression")
	})

	_, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), "")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestPredictOneUnknownModel(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
		areaWorstLogistic(t, store, "knn_variant")
	})

	_, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), "random_forest")
	var unknown *UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	if unknown.Name != "random_forest" {
		t.Errorf("expected requested name, got %q", unknown.Name)
	}
	msg := err.Error()
	if !strings.Contains(msg, "knn_variant") || !strings.Contains(msg, "logistic_regression") {
		t.Errorf("error should list available models, got %q", msg)
	}
}

func TestPredictOneModelMetricsAnnotation(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
		doc := map[string]metricstore.Metrics{
			"logistic_regression": {Accuracy: 0.97, F1Score: 0.96},
		}
		if err := store.WriteJSON(artifact.ComparisonFile, doc); err != nil {
			t.Fatalf("write comparison: %v", err)
		}
	})

	res, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), "")
	if err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}
	if res.ModelMetrics == nil || res.ModelMetrics.Accuracy != 0.97 {
		t.Errorf("expected metrics annotation, got %+v", res.ModelMetrics)
	}
}

func TestPredictBatchIsolation(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	inputs := []map[string]float64{
		canonicalMalignantMap(),
		{"area_worst": 100},
		{},
	}
	items, err := svc.PredictBatch(context.Background(), inputs, "")
	if err != nil {
		t.Fatalf("PredictBatch failed: %v", err)
	}
	if len(items) != len(inputs) {
		t.Fatalf("expected %d items, got %d", len(inputs), len(items))
	}
	for i, item := range items {
		if item.Index != i {
			t.Errorf("item %d has index %d", i, item.Index)
		}
		if item.Result == nil || item.Error != "" {
			t.Errorf("item %d should have succeeded: %+v", i, item)
		}
	}
	if items[0].Result.Prediction != 1 {
		t.Errorf("canonical record should be malignant, got %d", items[0].Result.Prediction)
	}
	// All features missing still predicts: everything defaults to 0.
	if items[2].Result.Prediction != 0 {
		t.Errorf("empty record should be benign under this model, got %d", items[2].Result.Prediction)
	}
}

func TestPredictBatchPreconditionOnce(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	_, err := svc.PredictBatch(context.Background(),
		[]map[string]float64{{}, {}}, "no_such_model")
	var unknown *UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected whole-batch UnknownModelError, got %v", err)
	}
}

func TestPredictCaching(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, serviceOpts{
		cfg:  Config{CacheSize: 16, CacheTTL: time.Minute},
		sink: sink,
	}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	input := canonicalMalignantMap()
	for i := 0; i < 3; i++ {
		if _, err := svc.PredictOne(context.Background(), input, ""); err != nil {
			t.Fatalf("PredictOne failed: %v", err)
		}
	}

	if sink.misses != 1 {
		t.Errorf("expected 1 cache miss, got %d", sink.misses)
	}
	if sink.hits != 2 {
		t.Errorf("expected 2 cache hits, got %d", sink.hits)
	}
	if sink.predictions != 3 {
		t.Errorf("cached responses still count as predictions, got %d", sink.predictions)
	}
}

func TestInvalidateModelPurgesCache(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, serviceOpts{
		cfg:  Config{CacheSize: 16, CacheTTL: time.Minute},
		sink: sink,
	}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	input := canonicalMalignantMap()
	if _, err := svc.PredictOne(context.Background(), input, ""); err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}

	svc.InvalidateModel("logistic_regression")

	if _, err := svc.PredictOne(context.Background(), input, ""); err != nil {
		t.Fatalf("PredictOne after invalidation failed: %v", err)
	}
	if sink.misses != 2 {
		t.Errorf("expected a cache miss after invalidation, got %d misses", sink.misses)
	}
}

func TestPredictFailureCountsOnce(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, serviceOpts{sink: sink}, func(store *artifact.Store) {
		identityScaler(t, store)
		brokenModel(t, store, "logistic_regression")
	})

	_, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), "")
	if err == nil {
		t.Fatal("expected error from corrupt model")
	}
	if sink.failures != 1 {
		t.Errorf("expected 1 failure, got %d", sink.failures)
	}
	if sink.predictions != 0 {
		t.Errorf("failed call must not count as a prediction, got %d", sink.predictions)
	}
}

func TestPredictRecordsMalignantScore(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, serviceOpts{sink: sink}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	res, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), "")
	if err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}
	if len(sink.scores) != 1 {
		t.Fatalf("expected 1 observed malignant score, got %d", len(sink.scores))
	}
	if sink.scores[0] != res.ProbabilityMalignant {
		t.Errorf("observed score %v does not match result %v", sink.scores[0], res.ProbabilityMalignant)
	}
}

func TestPredictContextCanceled(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.PredictOne(ctx, canonicalMalignantMap(), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	svc := newTestService(t, serviceOpts{}, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	})

	h := svc.Health()
	if !h.ScalerReady || !h.ModelsReady {
		t.Errorf("expected ready health, got %+v", h)
	}
	if len(h.AvailableModels) != 1 || h.AvailableModels[0] != "logistic_regression" {
		t.Errorf("expected [logistic_regression], got %v", h.AvailableModels)
	}

	degraded := newTestService(t, serviceOpts{}, nil)
	dh := degraded.Health()
	if dh.ScalerReady || dh.ModelsReady {
		t.Errorf("expected degraded health, got %+v", dh)
	}
}

func TestReloadScaler(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	areaWorstLogistic(t, store, "logistic_regression")

	sc := scaler.New()
	svc := New(Config{DefaultModel: "logistic_regression"}, store, sc,
		registry.New(store), metricstore.New(store), nil, nil)

	if err := svc.ReloadScaler(); err == nil {
		t.Fatal("expected error while scaler artifact is missing")
	}

	identityScaler(t, store)
	if err := svc.ReloadScaler(); err != nil {
		t.Fatalf("ReloadScaler failed: %v", err)
	}
	if _, err := svc.PredictOne(context.Background(), canonicalMalignantMap(), ""); err != nil {
		t.Fatalf("PredictOne after reload failed: %v", err)
	}
}
