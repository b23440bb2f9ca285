// Package registry maps model names to loaded predictor handles with
// lazy loading and process-lifetime caching.
package registry

import (
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"oncopredict/internal/artifact"
	"oncopredict/internal/model"
)

// LoadObserver receives cache lifecycle notifications: one call per
// storage load and the cache size after every change. Feeds the model
// load metrics.
type LoadObserver interface {
	ModelLoadInc()
	LoadedModelsSet(int)
}

// Registry caches predictor handles by name. Cached handles are
// read-only and shared freely across requests; the cache map itself is
// guarded, and concurrent loads of the same uncached name collapse into
// a single storage read.
type Registry struct {
	store artifact.Source
	obs   LoadObserver // optional

	mu    sync.RWMutex
	cache map[string]model.Handle
	group singleflight.Group
}

// New creates a registry over an artifact source.
func New(store artifact.Source) *Registry {
	return &Registry{
		store: store,
		cache: make(map[string]model.Handle),
	}
}

// SetObserver attaches a load observer. Call before the registry is
// shared across goroutines.
func (r *Registry) SetObserver(o LoadObserver) {
	r.obs = o
}

// Available returns the names whose artifacts are present on disk,
// sorted. Nothing is loaded; a name appears here independent of whether
// it is cached yet.
func (r *Registry) Available() []string {
	names, err := r.store.ModelNames()
	if err != nil {
		log.Warn().Err(err).Msg("artifact scan failed")
		return nil
	}
	return names
}

// Load reconstructs a handle from storage without consulting the cache
// and caches the result.
func (r *Registry) Load(name string) (model.Handle, error) {
	h, err := model.Load(r.store, name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[name] = h
	cached := len(r.cache)
	r.mu.Unlock()
	if r.obs != nil {
		r.obs.ModelLoadInc()
		r.obs.LoadedModelsSet(cached)
	}
	log.Info().Str("model", name).Str("kind", string(h.Kind())).Msg("model loaded")
	return h, nil
}

// GetOrLoad returns the cached handle for name, loading it on a miss.
// At most one load per name runs at a time; concurrent callers for the
// same uncached name share a single load.
func (r *Registry) GetOrLoad(name string) (model.Handle, error) {
	r.mu.RLock()
	h, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		// Re-check under the flight: an Invalidate+reload race may have
		// repopulated the cache while we queued.
		r.mu.RLock()
		h, ok := r.cache[name]
		r.mu.RUnlock()
		if ok {
			return h, nil
		}
		return r.Load(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(model.Handle), nil
}

// Invalidate drops a cached handle so the next GetOrLoad re-reads from
// storage. Used after retrain; in-flight predictions keep the handle
// they already hold.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	_, had := r.cache[name]
	delete(r.cache, name)
	cached := len(r.cache)
	r.mu.Unlock()
	if had {
		if r.obs != nil {
			r.obs.LoadedModelsSet(cached)
		}
		log.Info().Str("model", name).Msg("model cache invalidated")
	}
}

// CachedNames returns the names currently loaded into the cache.
func (r *Registry) CachedNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cache))
	for n := range r.cache {
		names = append(names, n)
	}
	return names
}
