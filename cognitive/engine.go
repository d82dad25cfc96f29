// Package cognitive decides whether a critiqued artifact may proceed
// automatically or must be handed to a human, based on the process-wide
// quadrant configuration.
package cognitive

import (
	"fmt"

	"github.com/blksails/e2e-agents/types"
)

// Named intervention triggers a quadrant can enable for collaborative mode.
const (
	TriggerLowConfidence = "low_confidence"
	TriggerCriticalIssue = "critical_issue"
)

// Decision is an escalation verdict plus the recommended next action. It is
// advisory text, never an error.
type Decision struct {
	ShouldEscalate bool                    `json:"should_escalate"`
	Reason         string                  `json:"reason"`
	Action         types.RecommendedAction `json:"action"`
}

// Decide evaluates the per-mode escalation rules against a critique. The
// quadrant is passed explicitly rather than read from ambient state so the
// decision stays a pure function.
func Decide(c types.CritiqueResult, q types.CognitiveQuadrant) Decision {
	escalate, reason := shouldEscalate(c, q)
	return Decision{
		ShouldEscalate: escalate,
		Reason:         reason,
		Action:         recommend(c, q, escalate),
	}
}

func shouldEscalate(c types.CritiqueResult, q types.CognitiveQuadrant) (bool, string) {
	overall := c.Score.Overall
	t := q.Thresholds

	switch q.Mode {
	case types.ModeAutonomous:
		if overall < t.AutoCorrect {
			return true, fmt.Sprintf("confidence %.3f below auto-correct threshold %.2f", overall, t.AutoCorrect)
		}
		if c.HasCritical() {
			return true, "critical issue found"
		}
		return false, "confidence sufficient for autonomous operation"

	case types.ModeCollaborative:
		if overall >= t.AutoApprove {
			return false, fmt.Sprintf("confidence %.3f meets auto-approve threshold %.2f", overall, t.AutoApprove)
		}
		if overall < t.RequireReview {
			return true, fmt.Sprintf("confidence %.3f below review threshold %.2f", overall, t.RequireReview)
		}
		if name, fired := firedTrigger(c, q); fired {
			return true, "intervention trigger fired: " + name
		}
		return false, "no intervention trigger fired"

	case types.ModeManual:
		if overall >= 0.9 && len(c.Issues) == 0 {
			return false, "manual mode: flawless result"
		}
		return true, "manual mode requires human sign-off"

	default: // supervised
		if overall >= t.AutoApprove {
			return false, fmt.Sprintf("confidence %.3f meets auto-approve threshold %.2f", overall, t.AutoApprove)
		}
		if overall < t.RequireReview {
			return true, fmt.Sprintf("confidence %.3f below review threshold %.2f", overall, t.RequireReview)
		}
		if c.HasCritical() {
			return true, "critical issue found"
		}
		return false, "confidence within supervised tolerance"
	}
}

func firedTrigger(c types.CritiqueResult, q types.CognitiveQuadrant) (string, bool) {
	for _, name := range q.InterventionTriggers {
		switch name {
		case TriggerLowConfidence:
			if c.Score.HumanReviewRequired {
				return name, true
			}
		case TriggerCriticalIssue:
			if c.HasCritical() {
				return name, true
			}
		}
	}
	return "", false
}

func recommend(c types.CritiqueResult, q types.CognitiveQuadrant, escalate bool) types.RecommendedAction {
	overall := c.Score.Overall
	t := q.Thresholds

	if escalate {
		if overall < t.AutoCorrect {
			return types.ActionReject
		}
		return types.ActionReview
	}
	if len(c.AutoCorrections) > 0 && len(c.Issues) > 0 && overall >= t.AutoCorrect {
		return types.ActionAutoCorrect
	}
	if overall >= t.AutoApprove {
		return types.ActionApprove
	}
	return types.ActionReview
}
