// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package changeset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/resuralph/ralphstack/internal/provider/fake"
)

func newRateLimiterForTest(clock *time.Time) *RateLimiter {
	// The fake provider allows 5 requests per second
	l := NewRateLimiter(fake.New())
	l.now = func() time.Time { return *clock }
	return l
}

func TestRateLimiter_GrantsTokensWhenAvailable(t *testing.T) {
	clock := time.Now()
	limiter := newRateLimiterForTest(&clock)

	assert.Equal(t, 2, limiter.RequestTokens(fake.Namespace, 2))
}

func TestRateLimiter_GrantsNoMoreTokensThanAvailable(t *testing.T) {
	clock := time.Now()
	limiter := newRateLimiterForTest(&clock)

	assert.Equal(t, 5, limiter.RequestTokens(fake.Namespace, 9))

	// Within the same second the bucket stays empty
	assert.Equal(t, 0, limiter.RequestTokens(fake.Namespace, 1))
}

func TestRateLimiter_RefillsTokensEverySecond(t *testing.T) {
	clock := time.Now()
	limiter := newRateLimiterForTest(&clock)

	assert.Equal(t, 5, limiter.RequestTokens(fake.Namespace, 5))

	clock = clock.Add(1100 * time.Millisecond)

	assert.Equal(t, 1, limiter.RequestTokens(fake.Namespace, 1))
}

func TestRateLimiter_UnknownNamespace(t *testing.T) {
	clock := time.Now()
	limiter := newRateLimiterForTest(&clock)

	assert.Equal(t, 0, limiter.RequestTokens("GCP", 1))
}
