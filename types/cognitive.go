package types

// Mode selects how aggressively automation may proceed without sign-off.
type Mode string

const (
	ModeAutonomous    Mode = "autonomous"
	ModeSupervised    Mode = "supervised"
	ModeCollaborative Mode = "collaborative"
	ModeManual        Mode = "manual"
)

// RecommendedAction is the advisory next step emitted with a verdict.
type RecommendedAction string

const (
	ActionApprove     RecommendedAction = "approve"
	ActionReject      RecommendedAction = "reject"
	ActionReview      RecommendedAction = "review"
	ActionAutoCorrect RecommendedAction = "auto_correct"
)

// Thresholds are the quadrant's confidence cut points, each in [0,1].
type Thresholds struct {
	AutoApprove   float64 `json:"auto_approve" yaml:"auto_approve"`
	RequireReview float64 `json:"require_review" yaml:"require_review"`
	AutoCorrect   float64 `json:"auto_correct" yaml:"auto_correct"`
}

// CognitiveQuadrant is the configured escalation policy. It is built once at
// process start (optionally hot-updated through cognitive.Manager) and read
// by every escalation decision; it is never mutated per run.
type CognitiveQuadrant struct {
	Mode                 Mode       `json:"mode" yaml:"mode"`
	Thresholds           Thresholds `json:"thresholds" yaml:"thresholds"`
	InterventionTriggers []string   `json:"intervention_triggers,omitempty" yaml:"intervention_triggers"`
}
