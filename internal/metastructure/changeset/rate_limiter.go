// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package changeset

import (
	"sync"
	"time"

	"github.com/resuralph/ralphstack/pkg/plugin"
)

type TokenBucket struct {
	Tokens     int
	Capacity   int
	LastRefill time.Time
}

func (b *TokenBucket) consume(n int) {
	b.Tokens -= n
}

func (b *TokenBucket) replenish(now time.Time) {
	if now.Sub(b.LastRefill) > 1*time.Second {
		b.Tokens = b.Capacity
		b.LastRefill = now
	}
}

// RateLimiter hands out provider request tokens per namespace. Each plugin defines its own
// requests-per-second budget.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	now     func() time.Time
}

func NewRateLimiter(plugins ...plugin.ResourcePlugin) *RateLimiter {
	l := &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
	}
	for _, p := range plugins {
		rateLimit := p.Throttling().MaxRequestsPerSecondForNamespace
		l.buckets[p.Namespace()] = &TokenBucket{
			Tokens:     rateLimit,
			Capacity:   rateLimit,
			LastRefill: l.now(),
		}
	}

	return l
}

// RequestTokens grants up to n tokens. Namespaces without a plugin get none.
func (l *RateLimiter) RequestTokens(namespace string, n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[namespace]
	if !ok {
		return 0
	}
	bucket.replenish(l.now())
	granted := min(n, bucket.Tokens)
	bucket.consume(granted)

	return granted
}

// HasNamespace reports whether a plugin serves namespace.
func (l *RateLimiter) HasNamespace(namespace string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.buckets[namespace]
	return ok
}
