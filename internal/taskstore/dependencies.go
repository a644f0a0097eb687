// Package taskstore owns the authoritative on-disk task-list file: parsing
// it into Task Records, computing dependency readiness, and guarding every
// mutation with a write-ahead log (spec §4.1, §6).
package taskstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harrison/kobold/internal/models"
)

// parseLeadingNumber extracts the numeric prefix of a task id for stable,
// human-friendly sort order when ids are numeric ("task-2" < "task-10").
// Non-numeric ids sort after numeric ones (adapted from the teacher's
// parseTaskNumber in internal/executor/graph.go).
func parseLeadingNumber(id string) int {
	var digits strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return 1 << 30
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 1 << 30
	}
	return n
}

// ValidateTasks checks for duplicate ids and dependencies on non-existent
// tasks, the load-time guard SPEC_FULL §4 adds on top of the teacher's
// ValidateTasks (internal/executor/graph.go).
func ValidateTasks(tasks []models.Task) error {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("task has empty id")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("task %s depends on non-existent task %s", t.ID, dep)
			}
		}
	}
	return nil
}

// HasCycle reports whether the dependency graph of tasks contains a cycle,
// using DFS with three-colour marking (adapted from
// internal/executor/graph.go's DependencyGraph.HasCycle). The Task Store
// refuses to Load a file whose structured dependencies cycle (spec §3 I4
// would otherwise be unsatisfiable: no task could ever reach Done).
func HasCycle(tasks []models.Task) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return true
			}
		}
	}

	colors := make(map[string]int, len(tasks))
	var dfs func(id string) bool
	dfs = func(id string) bool {
		colors[id] = gray
		for _, dep := range byID[id].Dependencies {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if dfs(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for id := range byID {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}
	return false
}

// complexityRank implements spec §4.7.1 step 5's secondary sort key: the
// first verb of the description maps to a complexity tier, ascending.
func complexityRank(description string) int {
	fields := strings.Fields(strings.ToLower(description))
	if len(fields) == 0 {
		return 2
	}
	switch fields[0] {
	case "setup", "set-up", "create", "add":
		return 1
	case "implement", "build":
		return 2
	case "integrate", "refactor", "optimize", "optimise":
		return 3
	default:
		return 2
	}
}

// SortReady orders ready tasks by priority descending, then by
// complexityRank ascending, then by numeric id for a stable tie-break
// (spec §4.7.1 step 5, grounded on the teacher's wave-numeric sort in
// internal/executor/graph.go's CalculateWaves).
func SortReady(tasks []models.Task) {
	less := func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		ca, cb := complexityRank(a.Description), complexityRank(b.Description)
		if ca != cb {
			return ca < cb
		}
		return parseLeadingNumber(a.ID) < parseLeadingNumber(b.ID)
	}
	insertionSort(tasks, less)
}

// insertionSort avoids importing sort.Slice's reflection-based comparator
// for a list that is always small (one project's ready set per tick) and
// keeps the dependency-light promise of this package's public surface.
func insertionSort(tasks []models.Task, less func(i, j int) bool) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}
