package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterDisabledWhenZero(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	err := rl.Wait(context.Background(), "anthropic")
	require.NoError(t, err)
}

func TestRateLimiterSeparatesPerProvider(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	require.NoError(t, rl.Wait(context.Background(), "anthropic"))
	require.NoError(t, rl.Wait(context.Background(), "openai"))
	assert.NotSame(t, rl.limiterFor("anthropic"), rl.limiterFor("openai"))
}

func TestRateLimiterSetLimitOverridesProvider(t *testing.T) {
	rl := NewRateLimiter(2, 4)
	rl.SetLimit("bedrock", 50, 50)
	assert.Equal(t, 50.0, float64(rl.limiterFor("bedrock").Limit()))
}
