package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBreakerStore shares circuit-breaker state across multiple
// Orchestrator Registry processes via a Redis key per provider name
// (SPEC_FULL §3). Each entry carries its own TTL so a process that crashes
// mid-open-window doesn't wedge the breaker open forever.
type RedisBreakerStore struct {
	Client    *redis.Client
	KeyPrefix string
}

// NewRedisBreakerStore returns a store using client, namespacing keys under
// prefix (default "kobold:breaker:").
func NewRedisBreakerStore(client *redis.Client, prefix string) *RedisBreakerStore {
	if prefix == "" {
		prefix = "kobold:breaker:"
	}
	return &RedisBreakerStore{Client: client, KeyPrefix: prefix}
}

func (r *RedisBreakerStore) key(provider string) string {
	return r.KeyPrefix + provider
}

func (r *RedisBreakerStore) Get(ctx context.Context, provider string) (BreakerState, error) {
	raw, err := r.Client.Get(ctx, r.key(provider)).Bytes()
	if err == redis.Nil {
		return BreakerState{}, nil
	}
	if err != nil {
		return BreakerState{}, fmt.Errorf("redis breaker get %s: %w", provider, err)
	}
	var state BreakerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return BreakerState{}, fmt.Errorf("redis breaker decode %s: %w", provider, err)
	}
	return state, nil
}

func (r *RedisBreakerStore) Set(ctx context.Context, provider string, state BreakerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis breaker encode %s: %w", provider, err)
	}
	ttl := time.Until(state.OpenUntil)
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := r.Client.Set(ctx, r.key(provider), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis breaker set %s: %w", provider, err)
	}
	return nil
}
