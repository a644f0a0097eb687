// Package telemetry records Supervisor events as OpenTelemetry counters and
// a task-duration histogram (SPEC_FULL §2/§3). It also offers span helpers
// (StartSpan, EndSpanErr); the Supervisor does not open spans. It is no-op
// by default — a
// Recorder with a nil meter and tracer discards every call — so the
// kernel runs without a collector configured, matching the teacher's
// "logger may be nil" convention for optional instrumentation.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/harrison/kobold"

// Instruments holds every counter and histogram the kernel emits.
type Instruments struct {
	TicksRun        metric.Int64Counter
	TasksStarted    metric.Int64Counter
	TasksCompleted  metric.Int64Counter
	TasksFailed     metric.Int64Counter
	WatchdogTimeout metric.Int64Counter
	CommitsCreated  metric.Int64Counter
	TaskDuration    metric.Float64Histogram
}

// Recorder is the seam the Supervisor drives. A zero-value Recorder (or one
// built with NewNoop) discards every call.
type Recorder struct {
	inst   *Instruments
	tracer trace.Tracer
}

// NewNoop returns a Recorder that discards every call, for when
// Config.TelemetryEnabled is false.
func NewNoop() *Recorder {
	return &Recorder{}
}

// New builds a Recorder against the process's global MeterProvider and
// TracerProvider. Call this after the caller has installed real providers
// (otherwise the global providers are themselves no-ops, which is a
// harmless equivalent to NewNoop).
func New() (*Recorder, error) {
	meter := otel.Meter(scopeName)

	ticksRun, err := meter.Int64Counter("kobold.ticks.run", metric.WithDescription("supervisor ticks run"))
	if err != nil {
		return nil, err
	}
	tasksStarted, err := meter.Int64Counter("kobold.tasks.started", metric.WithDescription("tasks assigned to a worker"))
	if err != nil {
		return nil, err
	}
	tasksCompleted, err := meter.Int64Counter("kobold.tasks.completed", metric.WithDescription("tasks reaching Done"))
	if err != nil {
		return nil, err
	}
	tasksFailed, err := meter.Int64Counter("kobold.tasks.failed", metric.WithDescription("tasks reaching Failed"))
	if err != nil {
		return nil, err
	}
	watchdogTimeout, err := meter.Int64Counter("kobold.watchdog.timeouts", metric.WithDescription("workers killed by the stuck-worker watchdog"))
	if err != nil {
		return nil, err
	}
	commitsCreated, err := meter.Int64Counter("kobold.commits.created", metric.WithDescription("commits created for completed tasks"))
	if err != nil {
		return nil, err
	}
	taskDuration, err := meter.Float64Histogram("kobold.task.duration", metric.WithDescription("task execution duration"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		inst: &Instruments{
			TicksRun:        ticksRun,
			TasksStarted:    tasksStarted,
			TasksCompleted:  tasksCompleted,
			TasksFailed:     tasksFailed,
			WatchdogTimeout: watchdogTimeout,
			CommitsCreated:  commitsCreated,
			TaskDuration:    taskDuration,
		},
		tracer: otel.Tracer(scopeName),
	}, nil
}

// RecordTick increments the tick counter for a project.
func (r *Recorder) RecordTick(ctx context.Context, projectID string) {
	if r == nil || r.inst == nil {
		return
	}
	r.inst.TicksRun.Add(ctx, 1, metric.WithAttributes(attribute.String("project_id", projectID)))
}

// RecordTaskStart increments the started counter.
func (r *Recorder) RecordTaskStart(ctx context.Context, projectID, agentType string) {
	if r == nil || r.inst == nil {
		return
	}
	r.inst.TasksStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("agent_type", agentType),
	))
}

// RecordTaskResult increments the completed/failed counter and records
// duration, depending on success.
func (r *Recorder) RecordTaskResult(ctx context.Context, projectID, agentType string, success bool, duration time.Duration) {
	if r == nil || r.inst == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("agent_type", agentType),
	)
	if success {
		r.inst.TasksCompleted.Add(ctx, 1, attrs)
	} else {
		r.inst.TasksFailed.Add(ctx, 1, attrs)
	}
	r.inst.TaskDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordWatchdogTimeout increments the watchdog-kill counter.
func (r *Recorder) RecordWatchdogTimeout(ctx context.Context, projectID string) {
	if r == nil || r.inst == nil {
		return
	}
	r.inst.WatchdogTimeout.Add(ctx, 1, metric.WithAttributes(attribute.String("project_id", projectID)))
}

// RecordCommit increments the commit counter.
func (r *Recorder) RecordCommit(ctx context.Context, projectID string) {
	if r == nil || r.inst == nil {
		return
	}
	r.inst.CommitsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("project_id", projectID)))
}

// StartSpan starts a span if a tracer is configured; otherwise it returns
// ctx unchanged and a span whose End/RecordError/SetStatus are no-ops.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil || r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpanErr records err on span (if non-nil) and ends it.
func EndSpanErr(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
