package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(nil, 3, time.Minute)
	cb.Now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		require.NoError(t, cb.RecordFailure(ctx, "anthropic"))
		allowed, err := cb.Allow(ctx, "anthropic")
		require.NoError(t, err)
		assert.True(t, allowed, "breaker should stay closed below threshold")
	}

	require.NoError(t, cb.RecordFailure(ctx, "anthropic"))
	allowed, err := cb.Allow(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, allowed, "breaker should open once threshold failures accrue")
}

func TestCircuitBreakerClosesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(nil, 1, time.Minute)
	cb.Now = func() time.Time { return now }

	require.NoError(t, cb.RecordFailure(ctx, "openai"))
	allowed, _ := cb.Allow(ctx, "openai")
	assert.False(t, allowed)

	now = now.Add(2 * time.Minute)
	allowed, _ = cb.Allow(ctx, "openai")
	assert.True(t, allowed, "breaker should re-close once cooldown elapses")
}

func TestCircuitBreakerRecordSuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker(nil, 2, time.Minute)

	require.NoError(t, cb.RecordFailure(ctx, "bedrock"))
	require.NoError(t, cb.RecordSuccess(ctx, "bedrock"))
	require.NoError(t, cb.RecordFailure(ctx, "bedrock"))

	allowed, _ := cb.Allow(ctx, "bedrock")
	assert.True(t, allowed, "a reset failure count should not have reached threshold yet")
}

func TestMemoryBreakerStoreUnknownProviderIsClosed(t *testing.T) {
	store := NewMemoryBreakerStore()
	state, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, state.Open(time.Now()))
}
