package registry

import (
	"context"
	"sync"
	"time"
)

// cacheEntry represents a cached verification result
type cacheEntry struct {
	result    VerificationResult
	expiresAt time.Time
}

// CachingGateway wraps a Gateway with a small TTL cache so repeated binds
// against the same business do not hammer the registry. Errors are never
// cached.
type CachingGateway struct {
	inner   Gateway
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachingGateway creates a caching wrapper around the given gateway
func NewCachingGateway(inner Gateway, ttl time.Duration) *CachingGateway {
	return &CachingGateway{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Verify returns a cached result when fresh, otherwise asks the inner
// gateway and caches the outcome.
func (g *CachingGateway) Verify(ctx context.Context, licenseNumber string) (VerificationResult, error) {
	g.mu.Lock()
	if entry, ok := g.entries[licenseNumber]; ok && time.Now().Before(entry.expiresAt) {
		g.mu.Unlock()
		return entry.result, nil
	}
	g.mu.Unlock()

	result, err := g.inner.Verify(ctx, licenseNumber)
	if err != nil {
		return VerificationResult{}, err
	}

	g.mu.Lock()
	g.entries[licenseNumber] = cacheEntry{result: result, expiresAt: time.Now().Add(g.ttl)}
	g.mu.Unlock()

	return result, nil
}

// Invalidate drops the cached result for a license number
func (g *CachingGateway) Invalidate(licenseNumber string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, licenseNumber)
}
