// Package planner turns a task description and workspace context into an
// ordered Plan via a single tool-call to the Provider Client. The planner
// never touches the filesystem itself (spec §4.4).
package planner

import "github.com/harrison/kobold/internal/models"

// Request carries everything the planner's prompt can draw on. Every field
// beyond TaskDescription is optional context.
type Request struct {
	TaskDescription        string
	SpecificationContext   string
	ProjectStructureHints  []string
	WorkspaceFiles         []string
	FilesClaimedByOthers   []string
	FileMetadata           map[string]models.FileMetadata
	RelatedCompletedPlans  []models.Plan
	SimilarTaskInsights    []string
	BestPractices          []string
}
