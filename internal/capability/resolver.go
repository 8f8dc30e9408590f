// Package capability resolves the operator capabilities granted to a caller
// from a static role policy and caches the result per subject.
package capability

import (
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

// Cache defaults used when the configuration leaves them unset.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheEntries = 1000
)

// Resolver implements model.CapabilityResolver with an expiring LRU cache.
type Resolver struct {
	evaluator model.PolicyEvaluator
	cache     *expirable.LRU[string, model.CapabilitySet]
	metrics   *observability.Metrics
}

// NewResolver creates a Resolver. Non-positive sizes fall back to the
// defaults.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration, maxEntries int, metrics *observability.Metrics) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Resolver{
		evaluator: evaluator,
		cache:     expirable.NewLRU[string, model.CapabilitySet](maxEntries, nil, ttl),
		metrics:   metrics,
	}
}

// cacheKey combines the subject with its sorted roles so a token carrying
// different roles resolves again.
func cacheKey(rctx *model.RequestContext) string {
	roles := slices.Clone(rctx.Roles)
	slices.Sort(roles)
	return rctx.SubjectID + "|" + strings.Join(roles, ",")
}

// Resolve returns the capability set for the given context.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := cacheKey(rctx)
	if caps, ok := r.cache.Get(key); ok {
		r.metrics.RecordCapabilityCacheHit()
		return caps, nil
	}
	r.metrics.RecordCapabilityCacheMiss()

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, caps)
	return caps, nil
}

// Invalidate drops every cached set of subjectID.
func (r *Resolver) Invalidate(subjectID string) {
	prefix := subjectID + "|"
	for _, key := range r.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.cache.Remove(key)
		}
	}
}

// Purge drops every cached set. Called after the policy is reloaded.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// Len returns the number of cached sets.
func (r *Resolver) Len() int { return r.cache.Len() }

var _ model.CapabilityResolver = (*Resolver)(nil)
