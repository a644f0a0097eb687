// Package models holds the data types shared by every layer of the task
// execution kernel: task records, workers, plans, WAL entries and the
// workspace context. None of these types carry behaviour beyond small,
// well-contained invariant checks — orchestration logic lives in the
// packages that consume them (taskstore, supervisor, worker, planner).
package models

import (
	"errors"
	"time"
)

// Priority orders ready tasks within a tick (spec §4.7.1 step 5).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String renders the priority the way it is written in the task-list file.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityHigh:
		return "High"
	case PriorityNormal:
		return "Normal"
	case PriorityLow:
		return "Low"
	default:
		return "Normal"
	}
}

// ParsePriority maps a case-insensitive token to a Priority, defaulting to
// Normal for anything unrecognised (task-list parser is tolerant per §6).
func ParsePriority(token string) Priority {
	switch lower(token) {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// TaskStatus is the task lifecycle state (spec §3, Task Record).
type TaskStatus int

const (
	StatusUnassigned TaskStatus = iota
	StatusNotInitialized
	StatusWorking
	StatusDone
	StatusFailed
	StatusBlockedByFailure
)

func (s TaskStatus) String() string {
	switch s {
	case StatusNotInitialized:
		return "NotInitialized"
	case StatusWorking:
		return "Working"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	case StatusBlockedByFailure:
		return "BlockedByFailure"
	default:
		return "Unassigned"
	}
}

// ParseTaskStatus maps a case-insensitive token to a TaskStatus. Unknown
// tokens map to Unassigned per spec §4.1 Load contract.
func ParseTaskStatus(token string) TaskStatus {
	switch lower(token) {
	case "notinitialized", "not_initialized", "not initialized":
		return StatusNotInitialized
	case "working", "in_progress", "in progress":
		return StatusWorking
	case "done", "completed":
		return StatusDone
	case "failed":
		return StatusFailed
	case "blockedbyfailure", "blocked_by_failure", "blocked":
		return StatusBlockedByFailure
	default:
		return StatusUnassigned
	}
}

// AgentType is a closed set of worker specialisations (spec §3).
type AgentType string

const (
	AgentGenericCoding AgentType = "generic-coding"
	AgentCSharp        AgentType = "csharp"
	AgentCPP           AgentType = "cpp"
	AgentAssembler     AgentType = "assembler"
	AgentJavaScript    AgentType = "javascript"
	AgentTypeScript    AgentType = "typescript"
	AgentCSS           AgentType = "css"
	AgentHTML          AgentType = "html"
	AgentReact         AgentType = "react"
	AgentAngular       AgentType = "angular"
	AgentPHP           AgentType = "php"
	AgentPython        AgentType = "python"
	AgentDiagramming   AgentType = "diagramming"
	AgentMedia         AgentType = "media"
	AgentImage         AgentType = "image"
	AgentSVG           AgentType = "svg"
	AgentBitmap        AgentType = "bitmap"
)

// ValidAgentTypes lists every recognised specialisation, in declaration
// order, for validation and for the planner's agent-type hints.
var ValidAgentTypes = []AgentType{
	AgentGenericCoding, AgentCSharp, AgentCPP, AgentAssembler,
	AgentJavaScript, AgentTypeScript, AgentCSS, AgentHTML, AgentReact,
	AgentAngular, AgentPHP, AgentPython, AgentDiagramming, AgentMedia,
	AgentImage, AgentSVG, AgentBitmap,
}

// IsValidAgentType reports whether t is one of ValidAgentTypes.
func IsValidAgentType(t AgentType) bool {
	for _, v := range ValidAgentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Task is the Task Record of spec §3. Its Description carries the `[id]`
// prefix and `(depends on: ...)` marker when round-tripped through the
// task-list file (spec §6); Dependencies is the structured, authoritative
// source of truth once parsed (spec §9 open question).
type Task struct {
	ID                string
	Description       string
	Priority          Priority
	Status            TaskStatus
	AssignedAgentType AgentType
	ProjectID         string
	Dependencies      []string

	CommitSha    string
	OutputFiles  []string
	ProviderName string
	ErrorMessage string

	// CheckpointSha records HEAD before the worker started (SPEC_FULL §4,
	// diagnostic only — no rollback policy lives here).
	CheckpointSha string
}

// ErrEmptyTaskID is returned by Validate when Task.ID is empty.
var ErrEmptyTaskID = errors.New("task id is required")

// Validate checks the minimal structural requirements of a Task Record.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}
	if t.Description == "" {
		return errors.New("task description is required")
	}
	return nil
}

// IsReady reports whether every dependency id in depStatus is Done,
// implementing invariant I4 (a ready task has every dependency in Done).
func (t *Task) IsReady(depStatus map[string]TaskStatus) bool {
	for _, dep := range t.Dependencies {
		if depStatus[dep] != StatusDone {
			return false
		}
	}
	return true
}

// HasFailedDependency reports whether any dependency resolved to Failed,
// implementing invariant I2 (BlockedByFailure iff a dependency failed).
func (t *Task) HasFailedDependency(depStatus map[string]TaskStatus) bool {
	for _, dep := range t.Dependencies {
		if depStatus[dep] == StatusFailed {
			return true
		}
	}
	return false
}

// WorkerStatus is the Worker lifecycle state (spec §3).
type WorkerStatus int

const (
	WorkerUnassigned WorkerStatus = iota
	WorkerAssigned
	WorkerWorking
	WorkerDone
	WorkerFailed
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerAssigned:
		return "Assigned"
	case WorkerWorking:
		return "Working"
	case WorkerDone:
		return "Done"
	case WorkerFailed:
		return "Failed"
	default:
		return "Unassigned"
	}
}

// Worker is the disposable, single-use executor of spec §3. Workers are
// never re-bound to a different task once assigned.
type Worker struct {
	ID           string
	TaskID       string
	AgentType    AgentType
	Status       WorkerStatus
	StartedAt    time.Time
	LastModelAt  time.Time
	ErrorMessage string
	Plan         *Plan
}

// IdleSince returns the timestamp the stuck-worker watchdog measures idle
// time against: LastModelAt once the worker has received a response, else
// StartedAt (spec §5, watchdog timing floor).
func (w *Worker) IdleSince() time.Time {
	if !w.LastModelAt.IsZero() {
		return w.LastModelAt
	}
	return w.StartedAt
}
