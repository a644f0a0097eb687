package provider

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the per-provider circuit state consulted before the
// Supervisor assigns a task to that provider (spec §4.2, §4.7.1 step 7).
type BreakerState struct {
	ConsecutiveFailures int
	OpenUntil           time.Time
}

// Open reports whether the breaker is currently suppressing the provider.
func (s BreakerState) Open(now time.Time) bool {
	return now.Before(s.OpenUntil)
}

// BreakerStore persists circuit-breaker state per provider name. The
// in-memory implementation is the default (one supervisor process); the
// Redis-backed implementation lets several Orchestrator Registry processes
// (one per host) agree on which providers are open (SPEC_FULL §3).
type BreakerStore interface {
	Get(ctx context.Context, provider string) (BreakerState, error)
	Set(ctx context.Context, provider string, state BreakerState) error
}

// MemoryBreakerStore is the default, process-local BreakerStore.
type MemoryBreakerStore struct {
	mu     sync.Mutex
	states map[string]BreakerState
}

// NewMemoryBreakerStore returns an empty in-memory store.
func NewMemoryBreakerStore() *MemoryBreakerStore {
	return &MemoryBreakerStore{states: make(map[string]BreakerState)}
}

func (m *MemoryBreakerStore) Get(_ context.Context, provider string) (BreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[provider], nil
}

func (m *MemoryBreakerStore) Set(_ context.Context, provider string, state BreakerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[provider] = state
	return nil
}

// CircuitBreaker counts consecutive failures per provider name and opens
// the breaker for Cooldown once Threshold consecutive failures are
// observed (spec §4.2).
type CircuitBreaker struct {
	Store     BreakerStore
	Threshold int
	Cooldown  time.Duration
	Now       func() time.Time
}

// NewCircuitBreaker returns a breaker backed by store with the given
// threshold/cooldown. A nil store defaults to an in-memory, process-local
// store.
func NewCircuitBreaker(store BreakerStore, threshold int, cooldown time.Duration) *CircuitBreaker {
	if store == nil {
		store = NewMemoryBreakerStore()
	}
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{Store: store, Threshold: threshold, Cooldown: cooldown, Now: time.Now}
}

// Allow reports whether provider is currently usable.
func (b *CircuitBreaker) Allow(ctx context.Context, provider string) (bool, error) {
	state, err := b.Store.Get(ctx, provider)
	if err != nil {
		return false, err
	}
	return !state.Open(b.Now()), nil
}

// RecordSuccess resets the provider's failure count, closing the breaker.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context, provider string) error {
	return b.Store.Set(ctx, provider, BreakerState{})
}

// RecordFailure increments the provider's consecutive-failure count,
// opening the breaker for Cooldown once Threshold is reached.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, provider string) error {
	state, err := b.Store.Get(ctx, provider)
	if err != nil {
		return err
	}
	state.ConsecutiveFailures++
	if state.ConsecutiveFailures >= b.Threshold {
		state.OpenUntil = b.Now().Add(b.Cooldown)
	}
	return b.Store.Set(ctx, provider, state)
}
