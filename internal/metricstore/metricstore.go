// Package metricstore serves previously computed evaluation metrics
// for trained models, read from the persisted comparison document.
package metricstore

import (
	"sync"

	"github.com/rs/zerolog/log"

	"oncopredict/internal/artifact"
)

// ConfusionMatrix holds the binary confusion counts.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// Metrics is one model's evaluation record from the comparison
// document.
type Metrics struct {
	Accuracy        float64          `json:"accuracy"`
	ROCAUC          float64          `json:"roc_auc"`
	Recall          float64          `json:"recall"`
	Precision       float64          `json:"precision"`
	F1Score         float64          `json:"f1_score"`
	ConfusionMatrix *ConfusionMatrix `json:"confusion_matrix,omitempty"`
}

// Store caches per-name slices of the comparison artifact. Missing
// documents or names yield a well-defined zero record: metrics
// annotation must never block a prediction response.
type Store struct {
	artifacts artifact.Source

	mu    sync.RWMutex
	cache map[string]Metrics
}

// New creates a metrics store over an artifact source.
func New(artifacts artifact.Source) *Store {
	return &Store{
		artifacts: artifacts,
		cache:     make(map[string]Metrics),
	}
}

// Get returns the metrics for a model name, reading and caching the
// comparison document on first use. Unknown names return the zero
// record; misses are cached too, so a name with no record costs one
// document read, not one per prediction.
func (s *Store) Get(name string) Metrics {
	s.mu.RLock()
	m, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return m
	}

	m = s.read(name)
	s.mu.Lock()
	s.cache[name] = m
	s.mu.Unlock()
	return m
}

func (s *Store) read(name string) Metrics {
	if !s.artifacts.Exists(artifact.ComparisonFile) {
		return Metrics{}
	}

	var doc map[string]Metrics
	if err := s.artifacts.ReadJSON(artifact.ComparisonFile, &doc); err != nil {
		log.Warn().Err(err).Msg("model comparison document unreadable, serving zero metrics")
		return Metrics{}
	}
	return doc[name]
}

// Invalidate drops the cached slice for a model so the next Get
// re-reads the comparison document. Called after retrain.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}
