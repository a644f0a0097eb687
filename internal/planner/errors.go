package planner

import "errors"

// ErrPlanInvalid is returned when the model's create_implementation_plan
// tool call parses but produces a step missing required fields (spec
// §4.4): an empty steps array instead falls back to a single-step plan
// rather than erroring, since "do the whole task in one step" is always a
// valid plan.
var ErrPlanInvalid = errors.New("planner: plan step missing required fields")
