package metrics

// Wrapper exposes the subset of metrics the inference service records,
// without coupling that package to prometheus types.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc() {
	w.m.PredictionsTotal.Inc()
}

func (w *Wrapper) FailuresInc() {
	w.m.PredictionFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *Wrapper) LatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *Wrapper) MalignantScoreObserve(p float64) {
	w.m.MalignantScores.Observe(p)
}

func (w *Wrapper) ModelLoadInc() {
	w.m.ModelLoads.Inc()
}

func (w *Wrapper) LoadedModelsSet(n int) {
	w.m.LoadedModels.Set(float64(n))
}

func (w *Wrapper) ConsensusRunsInc() {
	w.m.ConsensusRuns.Inc()
}

func (w *Wrapper) ConsensusAgreementObserve(fraction float64) {
	w.m.ConsensusAgreement.Observe(fraction)
}

func (w *Wrapper) CacheHitsInc() {
	w.m.CacheHits.Inc()
}

func (w *Wrapper) CacheMissesInc() {
	w.m.CacheMisses.Inc()
}
