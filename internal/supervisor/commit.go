package supervisor

import (
	"fmt"
	"strings"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/harrison/kobold/internal/models"
)

const commitSubjectMaxRunes = 60

// buildCommitMessage renders the commit recorded for a task reaching Done
// (spec §4.7.1 step 7): a conventional-commit subject, the full description
// as the body, and a trailer block identifying the task for audit.
func buildCommitMessage(task models.Task) string {
	subject := fmt.Sprintf("feat(%s): %s", task.AssignedAgentType, truncateOnWordBoundary(task.Description, commitSubjectMaxRunes))

	var trailers strings.Builder
	fmt.Fprintf(&trailers, "Task-Id: %s\n", task.ID)
	fmt.Fprintf(&trailers, "Agent-Type: %s\n", task.AssignedAgentType)
	fmt.Fprintf(&trailers, "Priority: %s\n", task.Priority)
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&trailers, "Depends-On: %s\n", strings.Join(task.Dependencies, ", "))
	}
	fmt.Fprintf(&trailers, "Project: %s", task.ProjectID)

	return fmt.Sprintf("%s\n\n%s\n\n%s", subject, task.Description, trailers.String())
}

// truncateOnWordBoundary shortens s to at most maxRunes runes without
// splitting a word, appending an ellipsis when truncated. Word boundaries
// are found with a Unicode text segmenter rather than naive whitespace
// splitting so non-ASCII descriptions truncate correctly too.
func truncateOnWordBoundary(s string, maxRunes int) string {
	if len([]rune(s)) <= maxRunes {
		return s
	}

	seg := words.NewSegmenter([]byte(s))
	var b strings.Builder
	runeCount := 0
	for seg.Next() {
		word := seg.Value()
		wordRunes := len([]rune(string(word)))
		if runeCount+wordRunes > maxRunes {
			break
		}
		b.Write(word)
		runeCount += wordRunes
	}

	out := strings.TrimRight(b.String(), " \t\n")
	if out == "" {
		runes := []rune(s)
		out = string(runes[:maxRunes])
	}
	return out + "..."
}
