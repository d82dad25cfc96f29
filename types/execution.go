package types

// StepStatus is the terminal status of one executed step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped"
)

// RunStatus is the overall status of one workflow run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
	RunPartial RunStatus = "partial"
	RunSkipped RunStatus = "skipped"
)

// FailureRecord records one failed step inside the run state.
type FailureRecord struct {
	Position  int    `json:"position"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// SessionSnapshot captures what the engine knows about the driven browser
// session at the end of a run.
type SessionSnapshot struct {
	CurrentURL     string            `json:"current_url,omitempty"`
	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	SessionStorage map[string]string `json:"session_storage,omitempty"`
}

// ExecutionState is the mutable context of one run: the variable bag seeded
// from caller inputs and grown by extract/generate steps, plus progress
// bookkeeping. Owned exclusively by the engine for the run's duration.
type ExecutionState struct {
	Variables       map[string]Value `json:"variables"`
	CurrentPosition int              `json:"current_position"`
	Completed       []int            `json:"completed"`
	Failures        []FailureRecord  `json:"failures,omitempty"`
	Session         SessionSnapshot  `json:"session"`
}

// NewExecutionState seeds a fresh run state from caller-supplied inputs.
func NewExecutionState(inputs map[string]Value) *ExecutionState {
	vars := make(map[string]Value, len(inputs))
	for k, v := range inputs {
		vars[k] = v
	}
	return &ExecutionState{Variables: vars}
}

// Env lowers the variable bag into the form expression evaluation expects.
func (s *ExecutionState) Env() map[string]interface{} {
	env := make(map[string]interface{}, len(s.Variables))
	for k, v := range s.Variables {
		env[k] = v.Interface()
	}
	return env
}

// Clone deep-copies the state so a result can hold an immutable snapshot.
func (s *ExecutionState) Clone() ExecutionState {
	out := ExecutionState{
		Variables:       make(map[string]Value, len(s.Variables)),
		CurrentPosition: s.CurrentPosition,
		Completed:       append([]int(nil), s.Completed...),
		Failures:        append([]FailureRecord(nil), s.Failures...),
		Session:         s.Session,
	}
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	if s.Session.LocalStorage != nil {
		out.Session.LocalStorage = make(map[string]string, len(s.Session.LocalStorage))
		for k, v := range s.Session.LocalStorage {
			out.Session.LocalStorage[k] = v
		}
	}
	if s.Session.SessionStorage != nil {
		out.Session.SessionStorage = make(map[string]string, len(s.Session.SessionStorage))
		for k, v := range s.Session.SessionStorage {
			out.Session.SessionStorage[k] = v
		}
	}
	return out
}

// StepOutcome is the terminal record of one step attempt cycle.
type StepOutcome struct {
	Position      int        `json:"position"`
	Status        StepStatus `json:"status"`
	DurationMS    int64      `json:"duration_ms"`
	Output        *Value     `json:"output,omitempty"`
	Error         string     `json:"error,omitempty"`
	ScreenshotRef string     `json:"screenshot_ref,omitempty"`
}

// ExecutionResult is the immutable record of one workflow run; it is the
// unit persisted and reported.
type ExecutionResult struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     RunStatus       `json:"status"`
	StartedAt  int64           `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Outcomes   []StepOutcome   `json:"outcomes"`
	State      ExecutionState  `json:"state"`
	Critique   *CritiqueResult `json:"critique,omitempty"`
}
