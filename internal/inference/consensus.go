package inference

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"oncopredict/internal/features"
)

// Consensus aggregates predictions from every available model.
//
// Models that failed are recorded in Failures and excluded from the
// aggregate; the aggregate fields are nil when no model succeeded.
// Majority ties break toward malignant: missing a malignant tumor
// costs more than a false alarm.
type Consensus struct {
	Results  map[string]*Result `json:"predictions"`
	Failures map[string]string  `json:"errors,omitempty"`

	Prediction      *int     `json:"prediction"`
	PredictionLabel string   `json:"prediction_label,omitempty"`
	MeanProbability *float64 `json:"mean_probability"`
	Agreement       float64  `json:"agreement"`
	ModelsAttempted int      `json:"models_attempted"`
	ModelsSucceeded int      `json:"models_succeeded"`
}

// PredictConsensus runs every available model on the input, in
// parallel, and aggregates by majority vote. Per-model failures isolate
// to their own slot; aggregation waits until every attempted model has
// settled, because the agreement fraction depends on knowing the full
// success set.
func (s *Service) PredictConsensus(ctx context.Context, input map[string]float64) (*Consensus, error) {
	if !s.scaler.Ready() {
		return nil, &UnavailableError{Reason: "scaler not loaded"}
	}
	if s.metrics != nil {
		s.metrics.ConsensusRunsInc()
	}

	names := s.registry.Available()
	out := &Consensus{
		Results:         make(map[string]*Result, len(names)),
		ModelsAttempted: len(names),
	}
	if len(names) == 0 {
		return out, nil
	}

	vec := features.FromMap(input)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			res, err := s.predictVector(gctx, vec, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if out.Failures == nil {
					out.Failures = make(map[string]string)
				}
				out.Failures[name] = err.Error()
				return nil
			}
			out.Results[name] = res
			return nil
		})
	}
	// Workers never return errors; Wait is the settle barrier.
	_ = g.Wait()

	s.aggregate(out)
	return out, nil
}

func (s *Service) aggregate(c *Consensus) {
	c.ModelsSucceeded = len(c.Results)
	if c.ModelsSucceeded == 0 {
		return
	}

	malignantVotes := 0
	var probSum float64
	for _, r := range c.Results {
		if r.Prediction == 1 {
			malignantVotes++
		}
		probSum += r.ProbabilityMalignant
	}

	// Ties resolve toward malignant.
	majority := 0
	if 2*malignantVotes >= c.ModelsSucceeded {
		majority = 1
	}

	agree := 0
	for _, r := range c.Results {
		if r.Prediction == majority {
			agree++
		}
	}

	mean := probSum / float64(c.ModelsSucceeded)
	c.Prediction = &majority
	c.MeanProbability = &mean
	c.Agreement = float64(agree) / float64(c.ModelsSucceeded)
	if majority == 1 {
		c.PredictionLabel = LabelMalignant
	} else {
		c.PredictionLabel = LabelBenign
	}

	if s.metrics != nil {
		s.metrics.ConsensusAgreementObserve(c.Agreement)
	}
	if s.history != nil {
		s.recordHistory(&Result{
			ModelName:            "consensus",
			Prediction:           majority,
			PredictionLabel:      c.PredictionLabel,
			ProbabilityMalignant: mean,
			Confidence:           c.Agreement,
		}, true)
	}
}
