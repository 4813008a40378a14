// Package access resolves and caches actor capabilities, and evaluates
// authorization policy from static configuration.
package access

import (
	"sync"
	"time"

	"github.com/formgrid/flowd/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.AccessResolver with an in-memory cache. Capability
// grants change rarely; a short TTL keeps policy evaluation off the request
// hot path without letting revocations linger.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

func cacheKey(actor *model.Actor) string {
	return actor.SubjectID + ":" + actor.DomainID
}

// Resolve returns the full capability set for the given actor. Results are
// cached for the configured TTL.
func (r *Resolver) Resolve(actor *model.Actor) (model.CapabilitySet, error) {
	key := cacheKey(actor)

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		return entry.caps, nil
	}
	r.mu.RUnlock()

	caps, err := r.evaluator.ResolveCapabilities(actor)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given subject and tenant.
func (r *Resolver) Invalidate(subjectID, domainID string) {
	key := subjectID + ":" + domainID
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}
