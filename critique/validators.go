package critique

import (
	"strconv"
	"strings"
	"time"

	"github.com/blksails/e2e-agents/format"
	"github.com/blksails/e2e-agents/types"
)

// Critique phases.
const (
	PhaseWorkflow  = "workflow"
	PhaseExecution = "execution"
)

// CritiqueWorkflow runs the structural battery over a synthesized workflow
// and packages the findings with a confidence score.
func CritiqueWorkflow(wf types.Workflow) types.CritiqueResult {
	var issues []types.Issue
	var corrections []types.AutoCorrection

	for _, problem := range format.Validate(wf) {
		issues = append(issues, types.Issue{
			Severity:    severityFor(problem),
			Description: problem,
		})
	}

	if len(wf.SuccessCriteria) == 0 && len(wf.Steps) > 0 {
		issues = append(issues, types.Issue{
			Severity:    types.SeverityMedium,
			Description: "workflow declares no success criteria",
			Suggestion:  "add at least one criterion with a validation expression",
		})
	}

	for _, in := range wf.RequiredInputs {
		if in.Required && in.Default == "" && !inputReferenced(wf, in.Name) {
			issues = append(issues, types.Issue{
				Severity:    types.SeverityLow,
				Description: "required input " + in.Name + " is never referenced by a step",
			})
			corrections = append(corrections, types.AutoCorrection{
				Description: "drop unused required input " + in.Name,
			})
		}
	}

	// Expected fields: a name, a non-empty step list, and per step an action
	// and a description.
	expected := 2 + 2*len(wf.Steps)
	missing := 0
	if wf.Name == "" {
		missing++
	}
	if len(wf.Steps) == 0 {
		missing++
	}
	validated := 0
	for _, step := range wf.Steps {
		if step.Action == "" {
			missing++
		}
		if step.Description == "" {
			missing++
		}
		if step.Validation != nil {
			validated++
		}
	}

	feasibility := 1.0
	if len(wf.Steps) == 0 {
		feasibility = 0
	}
	coverage := 0.0
	if len(wf.Steps) > 0 {
		coverage = float64(validated) / float64(len(wf.Steps))
	}

	score, err := Score(Dimensions{
		Completeness: CompletenessFromMissing(missing, expected),
		Accuracy:     AccuracyFromErrors(len(issues), expected),
		Feasibility:  feasibility,
		Coverage:     coverage,
	}, DefaultReviewThreshold)
	if err != nil {
		return ZeroConfidence(PhaseWorkflow, err.Error())
	}

	return types.CritiqueResult{
		Phase:           PhaseWorkflow,
		Timestamp:       time.Now().UnixMilli(),
		Score:           score,
		Issues:          issues,
		AutoCorrections: corrections,
	}
}

// CritiqueExecution runs the post-run battery over an execution result.
func CritiqueExecution(wf types.Workflow, res types.ExecutionResult) types.CritiqueResult {
	var issues []types.Issue

	if len(res.Outcomes) == 0 {
		issues = append(issues, types.Issue{
			Severity:    types.SeverityCritical,
			Description: "no steps were executed",
		})
	}

	successes, failures, skips := 0, 0, 0
	hasErrorText := false
	for _, o := range res.Outcomes {
		switch o.Status {
		case types.StepSuccess:
			successes++
		case types.StepFailure:
			failures++
		case types.StepSkipped:
			skips++
		}
		if o.Error != "" {
			hasErrorText = true
		}
	}

	if res.Status == types.RunFailure && !hasErrorText && len(res.State.Failures) == 0 {
		issues = append(issues, types.Issue{
			Severity:    types.SeverityHigh,
			Description: "workflow failed silently: no step recorded an error",
			Suggestion:  "inspect the session log for out-of-band failures",
		})
	}

	for _, o := range res.Outcomes {
		if o.Status == types.StepSkipped {
			issues = append(issues, types.Issue{
				Severity:    types.SeverityLow,
				Description: stepLabel(wf, o.Position) + " was skipped after a failure",
			})
		}
	}

	planned := len(wf.Steps)
	executed := len(res.Outcomes)

	feasibility := 0.0
	if executed > 0 {
		feasibility = float64(successes) / float64(executed)
	}

	score, err := Score(Dimensions{
		Completeness: CompletenessFromMissing(planned-executed, planned),
		Accuracy:     AccuracyFromErrors(failures, executed),
		Feasibility:  feasibility,
		Coverage:     CompletenessFromMissing(planned-(successes+skips), planned),
	}, DefaultReviewThreshold)
	if err != nil {
		return ZeroConfidence(PhaseExecution, err.Error())
	}

	return types.CritiqueResult{
		Phase:     PhaseExecution,
		Timestamp: time.Now().UnixMilli(),
		Score:     score,
		Issues:    issues,
	}
}

// severityFor maps a structural problem to an issue severity.
func severityFor(problem string) types.Severity {
	switch {
	case strings.Contains(problem, "has no steps"):
		return types.SeverityCritical
	case strings.Contains(problem, "missing a description"):
		return types.SeverityMedium
	default:
		return types.SeverityHigh
	}
}

func inputReferenced(wf types.Workflow, name string) bool {
	for _, step := range wf.Steps {
		if step.Data != nil && step.Data.Kind == types.DataFromInput && step.Data.Field == name {
			return true
		}
	}
	return false
}

func stepLabel(wf types.Workflow, position int) string {
	for _, step := range wf.Steps {
		if step.Position == position && step.Description != "" {
			return "step " + step.Description
		}
	}
	return "step at position " + strconv.Itoa(position)
}
