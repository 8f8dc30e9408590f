// Package resolver maps physical items reported by the host to the custom
// item definitions they are instances of.
package resolver

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

// DefaultCacheSize is used when no cache size is configured.
const DefaultCacheSize = 4096

type cacheKey struct {
	version  uint64
	identity model.CosmeticIdentity
}

// Resolver matches observed items against the registry. Results, misses
// included, are cached per registry version.
type Resolver struct {
	registry *definition.Registry
	cache    *lru.Cache[cacheKey, *model.ItemDefinition]
	seen     atomic.Uint64
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// New creates a Resolver over registry. A size of zero selects
// DefaultCacheSize.
func New(registry *definition.Registry, size int, metrics *observability.Metrics, logger *zap.Logger) (*Resolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[cacheKey, *model.ItemDefinition](size)
	if err != nil {
		return nil, err
	}
	r := &Resolver{registry: registry, cache: cache, metrics: metrics, logger: logger}
	r.seen.Store(registry.Version())
	return r, nil
}

// Match returns the first definition the observed item is an instance of.
func (r *Resolver) Match(observed model.ObservedItem) (*model.ItemDefinition, bool) {
	observed = observed.Normalized()
	if observed.Material == "" || observed.Material.IsAir() {
		return nil, false
	}

	snap := r.registry.Snapshot()
	if v := snap.Version(); r.seen.Swap(v) != v {
		r.cache.Purge()
		r.logger.Debug("resolver cache purged", zap.Uint64("version", v))
	}

	key := cacheKey{version: snap.Version(), identity: observed.Identity()}
	if def, ok := r.cache.Get(key); ok {
		r.metrics.RecordResolverCacheHit()
		return def, def != nil
	}
	r.metrics.RecordResolverCacheMiss()

	def, ok := First(snap, observed)
	r.cache.Add(key, def)
	return def, ok
}

// First walks snap in catalog order, then definition order, and returns the
// first definition observed matches. It does not consult any cache.
func First(snap *definition.Snapshot, observed model.ObservedItem) (*model.ItemDefinition, bool) {
	for _, c := range snap.Catalogs() {
		for _, d := range c.Definitions() {
			if observed.Matches(d) {
				return d, true
			}
		}
	}
	return nil, false
}

// Len returns the number of cached lookups.
func (r *Resolver) Len() int { return r.cache.Len() }
