package provider

import (
	"context"
	"fmt"
	"time"
)

// Client is the Provider Client of spec §4.2: it wraps a set of named
// Adapters with a shared RetryPolicy, a per-provider RateLimiter and a
// per-provider CircuitBreaker, presenting the Worker with a single
// SendMessage/SendMessageStreaming entry point regardless of backend.
type Client struct {
	adapters map[string]Adapter
	Retry    RetryPolicy
	Limiter  *RateLimiter
	Breaker  *CircuitBreaker

	// Sleep is overridable so retry-loop tests don't actually sleep.
	Sleep func(time.Duration)
}

// NewClient returns a Client with spec-default retry/breaker/limiter
// settings. Register adapters with Register before calling SendMessage.
func NewClient() *Client {
	return &Client{
		adapters: make(map[string]Adapter),
		Retry:    DefaultRetryPolicy(),
		Limiter:  NewRateLimiter(2, 4),
		Breaker:  NewCircuitBreaker(nil, 0, 0),
		Sleep:    time.Sleep,
	}
}

// Register adds or replaces the adapter for its own Name().
func (c *Client) Register(a Adapter) {
	c.adapters[a.Name()] = a
}

// Adapter returns the registered adapter by name, if any.
func (c *Client) Adapter(name string) (Adapter, bool) {
	a, ok := c.adapters[name]
	return a, ok
}

// SendMessage dispatches to the named provider's adapter, honoring the
// circuit breaker, per-provider rate limit and retry policy (spec §4.2).
// A breaker-open provider fails fast with StopNotConfigured rather than
// making a network call.
func (c *Client) SendMessage(ctx context.Context, providerName string, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error) {
	adapter, ok := c.adapters[providerName]
	if !ok {
		return Response{StopReason: StopNotConfigured}, fmt.Errorf("provider %q: %w", providerName, ErrProviderNotConfigured)
	}

	allowed, err := c.Breaker.Allow(ctx, providerName)
	if err != nil {
		return Response{}, fmt.Errorf("checking circuit breaker for %s: %w", providerName, err)
	}
	if !allowed {
		return Response{StopReason: StopNotConfigured, Err: fmt.Errorf("provider %q: %w", providerName, ErrCircuitOpen)}, nil
	}

	var lastResp Response
	var lastErr error

	for attempt := 1; attempt <= c.Retry.MaxAttempts; attempt++ {
		if err := c.Limiter.Wait(ctx, providerName); err != nil {
			return Response{}, fmt.Errorf("rate limiter wait for %s: %w", providerName, err)
		}

		resp, err := adapter.Send(ctx, conversation, tools, systemPrompt)
		lastResp, lastErr = resp, err

		if err == nil && resp.StopReason != StopError {
			_ = c.Breaker.RecordSuccess(ctx, providerName)
			return resp, nil
		}

		if err != nil && ctx.Err() != nil {
			return resp, err
		}

		if !c.shouldRetry(resp, err, attempt) {
			break
		}

		delay := c.retryDelay(resp, attempt)
		if c.Sleep != nil {
			c.Sleep(delay)
		}
	}

	_ = c.Breaker.RecordFailure(ctx, providerName)
	if lastErr == nil {
		lastErr = fmt.Errorf("provider %q exhausted retries", providerName)
	}
	return lastResp, lastErr
}

// SendMessageStreaming is the streaming counterpart. Adapters that don't
// support streaming fall back to a single buffered chunk. The circuit
// breaker and rate limiter are consulted as in SendMessage, but the call is
// made once: neither the buffered fallback nor opening a native stream is
// retried.
func (c *Client) SendMessageStreaming(ctx context.Context, providerName string, conversation []Message, tools []ToolDefinition, systemPrompt string) (StreamHandle, error) {
	adapter, ok := c.adapters[providerName]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", providerName, ErrProviderNotConfigured)
	}
	allowed, err := c.Breaker.Allow(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("checking circuit breaker for %s: %w", providerName, err)
	}
	if !allowed {
		return nil, fmt.Errorf("provider %q: %w", providerName, ErrCircuitOpen)
	}
	if err := c.Limiter.Wait(ctx, providerName); err != nil {
		return nil, fmt.Errorf("rate limiter wait for %s: %w", providerName, err)
	}

	streamer, ok := adapter.(interface {
		Stream(ctx context.Context, conversation []Message, tools []ToolDefinition, systemPrompt string) (StreamHandle, error)
	})
	if !ok {
		resp, err := adapter.Send(ctx, conversation, tools, systemPrompt)
		if err != nil {
			_ = c.Breaker.RecordFailure(ctx, providerName)
			return nil, err
		}
		_ = c.Breaker.RecordSuccess(ctx, providerName)
		return &bufferedStream{resp: resp}, nil
	}

	handle, err := streamer.Stream(ctx, conversation, tools, systemPrompt)
	if err != nil {
		_ = c.Breaker.RecordFailure(ctx, providerName)
		return nil, err
	}
	return handle, nil
}

func (c *Client) shouldRetry(resp Response, err error, attempt int) bool {
	if attempt >= c.Retry.MaxAttempts {
		return false
	}
	if err != nil {
		return true
	}
	return c.Retry.IsRetryable(resp.HTTPStatus)
}

func (c *Client) retryDelay(resp Response, attempt int) time.Duration {
	if resp.RetryAfterSeconds > 0 {
		return time.Duration(resp.RetryAfterSeconds * float64(time.Second))
	}
	return c.Retry.Delay(attempt)
}

// bufferedStream adapts a single Response into a one-shot StreamHandle for
// adapters that don't implement native streaming.
type bufferedStream struct {
	resp Response
	sent bool
}

func (b *bufferedStream) Next() (ContentBlock, bool) {
	if b.sent || len(b.resp.Content) == 0 {
		return ContentBlock{}, false
	}
	b.sent = true
	return b.resp.Content[0], true
}

func (b *bufferedStream) Err() error       { return b.resp.Err }
func (b *bufferedStream) Final() Response  { return b.resp }
