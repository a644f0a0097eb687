package planner

import (
	"fmt"
	"strings"
)

const createPlanToolName = "create_implementation_plan"

func createPlanTool() map[string]any {
	return map[string]any{
		"name":        createPlanToolName,
		"description": "Record the ordered implementation plan for this task. Call exactly once.",
		"input_schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title":            map[string]any{"type": "string"},
							"description":      map[string]any{"type": "string"},
							"filesToCreate":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"filesToModify":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
						"required": []string{"title", "description"},
					},
				},
			},
			"required": []string{"steps"},
		},
	}
}

// buildSystemPrompt renders the planner's prompt contract (spec §4.4): it
// states the rules the model must follow, not the task itself.
func buildSystemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are the planning stage of an automated task execution kernel. ")
	b.WriteString("Produce an ordered list of atomic implementation steps by calling ")
	b.WriteString(createPlanToolName)
	b.WriteString(" exactly once. Do not write or read any files yourself.\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Existing workspace files are modify-candidates only; never list them under filesToCreate.\n")
	b.WriteString("- Files claimed by other active workers are in use; avoid touching them unless unavoidable.\n")
	b.WriteString("- Each step should be atomic, ideally touching one file, with a clear title.\n")
	b.WriteString("- Order steps by dependency: a step must not assume work a later step performs.\n\n")

	if len(req.WorkspaceFiles) > 0 {
		b.WriteString("<workspace_files>\n")
		for _, f := range req.WorkspaceFiles {
			b.WriteString(fmt.Sprintf("<file>%s</file>\n", f))
		}
		b.WriteString("</workspace_files>\n\n")
	}

	if len(req.FilesClaimedByOthers) > 0 {
		b.WriteString("<claimed_by_other_workers>\n")
		for _, f := range req.FilesClaimedByOthers {
			b.WriteString(fmt.Sprintf("<file>%s</file>\n", f))
		}
		b.WriteString("</claimed_by_other_workers>\n\n")
	}

	if len(req.ProjectStructureHints) > 0 {
		b.WriteString("<project_structure_hints>\n")
		for _, h := range req.ProjectStructureHints {
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("</project_structure_hints>\n\n")
	}

	if req.SpecificationContext != "" {
		b.WriteString("<specification_context>\n")
		b.WriteString(req.SpecificationContext)
		b.WriteString("\n</specification_context>\n\n")
	}

	if len(req.SimilarTaskInsights) > 0 {
		b.WriteString("<similar_task_insights>\n")
		for _, i := range req.SimilarTaskInsights {
			b.WriteString("- ")
			b.WriteString(i)
			b.WriteString("\n")
		}
		b.WriteString("</similar_task_insights>\n\n")
	}

	if len(req.BestPractices) > 0 {
		b.WriteString("<best_practices>\n")
		for _, p := range req.BestPractices {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
		b.WriteString("</best_practices>\n\n")
	}

	return b.String()
}

func buildUserPrompt(req Request) string {
	return fmt.Sprintf("<task>\n%s\n</task>", req.TaskDescription)
}
