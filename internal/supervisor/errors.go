package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TickPhase identifies which stage of a Supervisor.Tick an error occurred
// in (spec §4.7.1): reconciliation, orphan recovery, task execution, or the
// WAL replay/commit step.
type TickPhase int

const (
	PhaseReconcile TickPhase = iota
	PhaseOrphanRecovery
	PhaseTaskExecution
	PhaseCommit
)

func (p TickPhase) String() string {
	switch p {
	case PhaseOrphanRecovery:
		return "orphan-recovery"
	case PhaseTaskExecution:
		return "task-execution"
	case PhaseCommit:
		return "commit"
	default:
		return "reconcile"
	}
}

// TaskError is an error scoped to one task within a tick.
type TaskError struct {
	TaskID    string
	Message   string
	Err       error
	Timestamp time.Time
}

// NewTaskError returns a TaskError timestamped now.
func NewTaskError(taskID, message string, err error) *TaskError {
	return &TaskError{TaskID: taskID, Message: message, Err: err, Timestamp: time.Now()}
}

func (e *TaskError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("task %s: %s", e.TaskID, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

func (e *TaskError) Unwrap() error { return e.Err }

// TickError aggregates every TaskError raised during one tick phase, so a
// single tick failure reports every task involved rather than just the
// first one seen.
type TickError struct {
	Phase       TickPhase
	TaskErrors  []*TaskError
	TotalTasks  int
	FailedTasks int
}

// NewTickError returns an empty TickError scoped to phase.
func NewTickError(phase TickPhase) *TickError {
	return &TickError{Phase: phase}
}

// AddTask records a task-scoped failure.
func (e *TickError) AddTask(taskErr *TaskError) {
	e.TaskErrors = append(e.TaskErrors, taskErr)
	e.FailedTasks++
}

// HasErrors reports whether any task failed this tick.
func (e *TickError) HasErrors() bool {
	return e.FailedTasks > 0
}

func (e *TickError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("tick failed in %s phase: %d/%d tasks failed", e.Phase, e.FailedTasks, e.TotalTasks))
	for _, taskErr := range e.TaskErrors {
		sb.WriteString(fmt.Sprintf("\n  - %s", taskErr.Error()))
	}
	return sb.String()
}

// Unwrap exposes the individual task errors for errors.Is/As.
func (e *TickError) Unwrap() []error {
	if len(e.TaskErrors) == 0 {
		return nil
	}
	errs := make([]error, len(e.TaskErrors))
	for i, te := range e.TaskErrors {
		errs[i] = te
	}
	return errs
}

// WatchdogTimeoutError reports a worker that exceeded its idle budget
// (spec §5, watchdog).
type WatchdogTimeoutError struct {
	TaskID        string
	IdleFor       time.Duration
	Timestamp     time.Time
}

// NewWatchdogTimeoutError returns a WatchdogTimeoutError timestamped now.
func NewWatchdogTimeoutError(taskID string, idleFor time.Duration) *WatchdogTimeoutError {
	return &WatchdogTimeoutError{TaskID: taskID, IdleFor: idleFor, Timestamp: time.Now()}
}

func (e *WatchdogTimeoutError) Error() string {
	return fmt.Sprintf("task %s: worker idle for %v, exceeding watchdog budget", e.TaskID, e.IdleFor)
}

func (e *WatchdogTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsWatchdogTimeout reports whether err is or wraps a WatchdogTimeoutError.
func IsWatchdogTimeout(err error) bool {
	var we *WatchdogTimeoutError
	return errors.As(err, &we)
}

// IsTickError reports whether err is or wraps a TickError.
func IsTickError(err error) bool {
	var te *TickError
	return errors.As(err, &te)
}
