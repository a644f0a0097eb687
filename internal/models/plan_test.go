package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fourStepPlan() *Plan {
	return &Plan{
		ProjectID: "proj",
		TaskID:    "t1",
		Status:    PlanInProgress,
		Steps: []PlanStep{
			{Index: 0, Title: "step0"},
			{Index: 1, Title: "step1"},
			{Index: 2, Title: "step2"},
			{Index: 3, Title: "step3"},
		},
	}
}

func TestPlanMarkStepCompleteAdvancesIndex(t *testing.T) {
	p := fourStepPlan()
	p.MarkStepComplete(0)
	p.MarkStepComplete(1)

	assert.Equal(t, 2, p.CurrentStepIndex)
	assert.False(t, p.IsComplete())
}

func TestPlanResumptionStartsAtCompletedCount(t *testing.T) {
	// Scenario 3 / testable property "Plan resumption": a plan that
	// previously failed with k steps completed resumes at index k.
	p := fourStepPlan()
	p.MarkStepComplete(0)
	p.MarkStepComplete(1)

	remaining := p.RemainingSteps()
	assert.Len(t, remaining, 2)
	assert.Equal(t, 2, remaining[0].Index)
}

func TestPlanIsCompleteRequiresEveryStep(t *testing.T) {
	p := fourStepPlan()
	for i := range p.Steps {
		p.MarkStepComplete(i)
	}
	assert.True(t, p.IsComplete())
}

func TestPlanAppendLog(t *testing.T) {
	p := fourStepPlan()
	now := time.Now()
	p.AppendLog(now, "step 0 started")
	assert.Len(t, p.Log, 1)
	assert.Equal(t, "step 0 started", p.Log[0].Message)
}
