package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNoopRecorderDiscardsEveryCall(t *testing.T) {
	r := NewNoop()
	ctx := context.Background()

	// None of these should panic on a Recorder with no instruments wired.
	r.RecordTick(ctx, "proj-1")
	r.RecordTaskStart(ctx, "proj-1", "generic-coding")
	r.RecordTaskResult(ctx, "proj-1", "generic-coding", true, 2*time.Second)
	r.RecordTaskResult(ctx, "proj-1", "generic-coding", false, time.Second)
	r.RecordWatchdogTimeout(ctx, "proj-1")
	r.RecordCommit(ctx, "proj-1")
}

func TestNilRecorderDiscardsEveryCall(t *testing.T) {
	var r *Recorder
	ctx := context.Background()

	r.RecordTick(ctx, "proj-1")
	r.RecordTaskStart(ctx, "proj-1", "generic-coding")
	r.RecordTaskResult(ctx, "proj-1", "generic-coding", true, time.Second)
	r.RecordWatchdogTimeout(ctx, "proj-1")
	r.RecordCommit(ctx, "proj-1")
}

func TestStartSpanOnNoopRecorderReturnsUsableSpan(t *testing.T) {
	r := NewNoop()
	ctx, span := r.StartSpan(context.Background(), "tick")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	EndSpanErr(span, nil)
}
