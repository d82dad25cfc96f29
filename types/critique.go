package types

// Severity classifies critique issues.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue is one finding produced by a critique battery.
type Issue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// ConfidenceScore is a weighted four-dimension quality estimate in [0,1].
type ConfidenceScore struct {
	Completeness        float64 `json:"completeness"`
	Accuracy            float64 `json:"accuracy"`
	Feasibility         float64 `json:"feasibility"`
	Coverage            float64 `json:"coverage"`
	Overall             float64 `json:"overall"`
	Reasoning           string  `json:"reasoning,omitempty"`
	HumanReviewRequired bool    `json:"human_review_required"`
}

// AutoCorrection is a proposed fix; Applied records whether it was taken.
type AutoCorrection struct {
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}

// CritiqueResult packages a phase's quality assessment of an artifact.
type CritiqueResult struct {
	Phase           string           `json:"phase"`
	Timestamp       int64            `json:"timestamp"`
	Score           ConfidenceScore  `json:"score"`
	Issues          []Issue          `json:"issues,omitempty"`
	AutoCorrections []AutoCorrection `json:"auto_corrections,omitempty"`
}

// HasCritical reports whether any issue is critical severity.
func (c CritiqueResult) HasCritical() bool {
	for _, issue := range c.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Clone copies the critique including its slices.
func (c CritiqueResult) Clone() CritiqueResult {
	out := c
	out.Issues = append([]Issue(nil), c.Issues...)
	out.AutoCorrections = append([]AutoCorrection(nil), c.AutoCorrections...)
	return out
}
