package types

import "time"

// Step actions form a closed set; every dispatch site switches over these.
type StepAction string

const (
	ActionNavigate    StepAction = "navigate"
	ActionClick       StepAction = "click"
	ActionInput       StepAction = "input"
	ActionSelect      StepAction = "select"
	ActionWait        StepAction = "wait"
	ActionVerify      StepAction = "verify"
	ActionScreenshot  StepAction = "screenshot"
	ActionExtract     StepAction = "extract"
	ActionConditional StepAction = "conditional"
	ActionLoop        StepAction = "loop"
)

// Complexity tags a workflow for reviewers and for merge tier forcing.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Rank orders complexity tiers so merges can force the highest one.
func (c Complexity) Rank() int {
	switch c {
	case ComplexityComplex:
		return 3
	case ComplexityMedium:
		return 2
	case ComplexitySimple:
		return 1
	}
	return 0
}

// DataSourceKind names where an input/extract step obtains its value.
type DataSourceKind string

const (
	DataFromInput     DataSourceKind = "input"   // caller-supplied variable
	DataFromGenerator DataSourceKind = "generated"
	DataFromState     DataSourceKind = "state"   // variable produced by an earlier step
	DataFromLiteral   DataSourceKind = "literal"
)

// ValidationKind names the per-step check evaluated after the action runs.
type ValidationKind string

const (
	ValidateExistence    ValidationKind = "existence"
	ValidateVisibility   ValidationKind = "visibility"
	ValidateTextContains ValidationKind = "text_contains"
	ValidateValueEquals  ValidationKind = "value_equals"
	ValidateCount        ValidationKind = "count"
	ValidateCustom       ValidationKind = "custom"
)

// ErrorStrategy names the failure policy applied when a step fails.
type ErrorStrategy string

const (
	StrategyRetry    ErrorStrategy = "retry"
	StrategySkip     ErrorStrategy = "skip"
	StrategyAbort    ErrorStrategy = "abort"
	StrategyFallback ErrorStrategy = "fallback"
)

// Target describes what a step acts on: a selector, a URL, or a literal.
type Target struct {
	Selector string `json:"selector,omitempty"`
	URL      string `json:"url,omitempty"`
	Value    string `json:"value,omitempty"`
}

// DataSource describes where a step's value comes from and, when OutputField
// is set, where the resolved value is written in the run's variable bag.
type DataSource struct {
	Kind        DataSourceKind `json:"kind"`
	Field       string         `json:"field,omitempty"`  // variable name for input/state kinds
	Method      string         `json:"method,omitempty"` // generator method for generated kind
	Value       *Value         `json:"value,omitempty"`  // payload for literal kind
	OutputField string         `json:"output_field,omitempty"`
}

// Validation describes the post-action check for a step.
type Validation struct {
	Kind      ValidationKind `json:"kind"`
	Expected  string         `json:"expected,omitempty"`
	TimeoutMS int            `json:"timeout_ms,omitempty"`
}

// ErrorPolicy routes a step failure. FallbackPosition is carried for the
// fallback strategy but the engine treats fallback as abort; see the engine
// dispatch site.
type ErrorPolicy struct {
	Strategy         ErrorStrategy `json:"strategy"`
	MaxRetries       int           `json:"max_retries,omitempty"`
	FallbackPosition int           `json:"fallback_position,omitempty"`
}

// Step is one typed action in a workflow. Positions are semantic: they must
// be unique and contiguous starting at 1.
type Step struct {
	Position    int          `json:"position"`
	Action      StepAction   `json:"action"`
	Description string       `json:"description"`
	Target      *Target      `json:"target,omitempty"`
	Data        *DataSource  `json:"data,omitempty"`
	Validation  *Validation  `json:"validation,omitempty"`
	OnError     *ErrorPolicy `json:"on_error,omitempty"`
}

// Clone deep-copies a step.
func (s Step) Clone() Step {
	out := s
	if s.Target != nil {
		t := *s.Target
		out.Target = &t
	}
	if s.Data != nil {
		d := *s.Data
		if s.Data.Value != nil {
			v := *s.Data.Value
			d.Value = &v
		}
		out.Data = &d
	}
	if s.Validation != nil {
		v := *s.Validation
		out.Validation = &v
	}
	if s.OnError != nil {
		p := *s.OnError
		out.OnError = &p
	}
	return out
}

// RequiredInput declares a variable the caller must (or may) supply.
type RequiredInput struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
}

// SuccessCriterion pairs a human description with a validation expression.
type SuccessCriterion struct {
	Description string `json:"description"`
	Validation  string `json:"validation"`
}

// Workflow is the unit of execution and persistence: an ordered, contiguously
// numbered sequence of steps plus metadata. Once attached to an
// ExecutionResult it must be treated as immutable; mutate by Clone.
type Workflow struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Complexity      Complexity         `json:"complexity,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	Steps           []Step             `json:"steps"`
	RequiredInputs  []RequiredInput    `json:"required_inputs,omitempty"`
	SuccessCriteria []SuccessCriterion `json:"success_criteria,omitempty"`
	Critique        *CritiqueResult    `json:"critique,omitempty"`
}

// Clone deep-copies a workflow so callers can derive variants without
// touching snapshots already referenced by execution results.
func (w Workflow) Clone() Workflow {
	out := w
	out.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		out.Steps[i] = s.Clone()
	}
	out.Tags = append([]string(nil), w.Tags...)
	out.RequiredInputs = append([]RequiredInput(nil), w.RequiredInputs...)
	out.SuccessCriteria = append([]SuccessCriterion(nil), w.SuccessCriteria...)
	if w.Critique != nil {
		c := w.Critique.Clone()
		out.Critique = &c
	}
	return out
}
