// Package workflow interprets workflows against a live browser session and
// produces critiqued execution results.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/songzhibin97/gkit/generator"

	"github.com/blksails/e2e-agents/critique"
	"github.com/blksails/e2e-agents/events"
	"github.com/blksails/e2e-agents/rules"
	"github.com/blksails/e2e-agents/storage"
	"github.com/blksails/e2e-agents/types"
)

// Standard error definitions
var (
	ErrSessionRequired   = errors.New("session is required")
	ErrGeneratorRequired = errors.New("generator is required")
	ErrNoSteps           = errors.New("workflow has no steps")
)

const (
	// DefaultMaxRetries bounds retry policies that declare no bound.
	DefaultMaxRetries = 3

	// DefaultWaitTimeout applies to wait steps without an explicit timeout.
	DefaultWaitTimeout = 30 * time.Second
)

// Engine executes workflows step by step against a session collaborator.
// Each run owns an independent ExecutionState; the engine must not be shared
// across concurrent runs without external synchronization because the
// session handle is mutable.
type Engine struct {
	session           Session
	values            ValueGenerator
	evaluator         rules.Evaluator
	storage           storage.Storage
	eventBus          *events.EventBus
	generate          generator.Generator
	defaultMaxRetries int
}

// NewEngine creates an Engine. The session and ID generator are required;
// storage defaults to in-memory and the evaluator to the expr-backed one.
func NewEngine(session Session, generate generator.Generator, store storage.Storage, evaluator rules.Evaluator) (*Engine, error) {
	if session == nil {
		return nil, ErrSessionRequired
	}
	if generate == nil {
		return nil, ErrGeneratorRequired
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	if evaluator == nil {
		evaluator = rules.NewExprEvaluator()
	}

	return &Engine{
		session:           session,
		evaluator:         evaluator,
		storage:           store,
		eventBus:          events.NewEventBus(),
		generate:          generate,
		defaultMaxRetries: DefaultMaxRetries,
	}, nil
}

// SetValueGenerator wires the collaborator used by generated data sources.
func (e *Engine) SetValueGenerator(g ValueGenerator) {
	e.values = g
}

// SubscribeEvent subscribes an event handler to a run lifecycle event type.
func (e *Engine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// Stop gracefully stops the engine's event bus.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}

// Execute runs a workflow with the given caller-supplied inputs. It never
// returns an error: any fault that escapes per-step handling is converted
// into a synthetic failure result with a critical issue and a
// zero-confidence critique.
func (e *Engine) Execute(ctx context.Context, wf types.Workflow, inputs map[string]types.Value) *types.ExecutionResult {
	state := types.NewExecutionState(inputs)
	applyInputDefaults(wf, state)
	return e.execute(ctx, wf, state, true)
}

// Resume restarts a workflow from the given position, seeded with a prior
// run's variables so completed steps are not re-run.
func (e *Engine) Resume(ctx context.Context, wf types.Workflow, prior *types.ExecutionState, from int) *types.ExecutionResult {
	sub := wf.Clone()
	var kept []types.Step
	for _, step := range sub.Steps {
		if step.Position >= from {
			kept = append(kept, step)
		}
	}
	sub.Steps = kept

	state := types.NewExecutionState(nil)
	if prior != nil {
		for k, v := range prior.Variables {
			state.Variables[k] = v
		}
		state.Completed = append([]int(nil), prior.Completed...)
		state.Session = prior.Session
	}
	applyInputDefaults(wf, state)
	return e.execute(ctx, sub, state, false)
}

// ExecuteBatch runs workflows sequentially. Runs are isolated: a fault in
// one produces that run's synthetic failure result without aborting the
// batch.
func (e *Engine) ExecuteBatch(ctx context.Context, wfs []types.Workflow, inputs map[string]types.Value) []*types.ExecutionResult {
	results := make([]*types.ExecutionResult, 0, len(wfs))
	for _, wf := range wfs {
		results = append(results, e.Execute(ctx, wf, inputs))
	}
	return results
}

// execute is the single run loop behind Execute and Resume.
func (e *Engine) execute(ctx context.Context, wf types.Workflow, state *types.ExecutionState, fromStart bool) (res *types.ExecutionResult) {
	runID := e.newRunID()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = e.syntheticFailure(ctx, runID, wf, started, state, fmt.Sprintf("panic during execution: %v", r))
		}
	}()

	if err := validateForRun(wf, fromStart); err != nil {
		return e.syntheticFailure(ctx, runID, wf, started, state, err.Error())
	}

	e.publishEvent(ctx, events.TypeRunStarted, runID, map[string]interface{}{
		"workflow_id": wf.ID,
		"steps":       len(wf.Steps),
	})

	outcomes := make([]types.StepOutcome, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		// Run-level cancellation: stop between steps, leaving later steps
		// without outcomes. Per-step semantics are unchanged.
		if ctx.Err() != nil {
			state.Failures = append(state.Failures, types.FailureRecord{
				Position:  step.Position,
				Error:     ctx.Err().Error(),
				Timestamp: time.Now().UnixMilli(),
			})
			break
		}

		outcome, halt := e.runStep(ctx, runID, step, state)
		outcomes = append(outcomes, outcome)
		if halt {
			break
		}
	}

	result := &types.ExecutionResult{
		ID:         runID,
		WorkflowID: wf.ID,
		Status:     deriveStatus(outcomes, len(wf.Steps)),
		StartedAt:  started.UnixMilli(),
		DurationMS: time.Since(started).Milliseconds(),
		Outcomes:   outcomes,
		State:      state.Clone(),
	}

	crit := critique.CritiqueExecution(wf, *result)
	e.checkCriteria(wf, state, &crit)
	result.Critique = &crit

	e.finish(ctx, result)
	return result
}

// checkCriteria evaluates the workflow's success criteria against the final
// variable bag and records any that did not hold as high-severity issues.
// Criteria are advisory: they flag the result, they do not change its status.
func (e *Engine) checkCriteria(wf types.Workflow, state *types.ExecutionState, crit *types.CritiqueResult) {
	env := state.Env()
	for _, c := range wf.SuccessCriteria {
		if c.Validation == "" {
			continue
		}
		ok, err := e.evaluator.Evaluate(c.Validation, env)
		if err != nil {
			crit.Issues = append(crit.Issues, types.Issue{
				Severity:    types.SeverityHigh,
				Description: fmt.Sprintf("success criterion %q could not be evaluated: %v", c.Description, err),
			})
			continue
		}
		if !ok {
			crit.Issues = append(crit.Issues, types.Issue{
				Severity:    types.SeverityHigh,
				Description: fmt.Sprintf("success criterion %q did not hold", c.Description),
				Suggestion:  "inspect the run's variable bag against " + c.Validation,
			})
		}
	}
}

// runStep drives one step through Pending -> Running -> terminal status and
// routes failures through the step's error policy. The halt return stops the
// run loop.
func (e *Engine) runStep(ctx context.Context, runID string, step types.Step, state *types.ExecutionState) (types.StepOutcome, bool) {
	start := time.Now()
	state.CurrentPosition = step.Position

	policy := types.StrategyAbort
	if step.OnError != nil && step.OnError.Strategy != "" {
		policy = step.OnError.Strategy
	}

	attempts := 1
	if policy == types.StrategyRetry {
		attempts = step.OnError.MaxRetries
		if attempts < 1 {
			attempts = e.defaultMaxRetries
		}
	}

	var output *types.Value
	var screenshotRef string
	var lastErr error

	// Retry attempts run back to back with no delay; the first success wins.
	for attempt := 1; attempt <= attempts; attempt++ {
		output, screenshotRef, lastErr = e.dispatch(ctx, runID, step, state)
		if lastErr == nil && step.Validation != nil && step.Action != types.ActionConditional {
			lastErr = e.checkValidation(ctx, step, state)
		}
		if lastErr == nil {
			break
		}
	}

	duration := time.Since(start).Milliseconds()

	if lastErr == nil {
		state.Completed = append(state.Completed, step.Position)
		e.publishEvent(ctx, events.TypeStepCompleted, runID, map[string]interface{}{
			"position": step.Position,
			"action":   string(step.Action),
		})
		return types.StepOutcome{
			Position:      step.Position,
			Status:        types.StepSuccess,
			DurationMS:    duration,
			Output:        output,
			ScreenshotRef: screenshotRef,
		}, false
	}

	state.Failures = append(state.Failures, types.FailureRecord{
		Position:  step.Position,
		Error:     lastErr.Error(),
		Timestamp: time.Now().UnixMilli(),
	})
	e.publishEvent(ctx, events.TypeStepFailed, runID, map[string]interface{}{
		"position": step.Position,
		"error":    lastErr.Error(),
	})

	switch policy {
	case types.StrategySkip:
		return types.StepOutcome{
			Position:   step.Position,
			Status:     types.StepSkipped,
			DurationMS: duration,
			Error:      lastErr.Error(),
		}, false
	default:
		// abort; retry degrades to abort once its attempts are exhausted;
		// fallback carries a target position but jumps are not implemented,
		// so it degrades to abort as well.
		return types.StepOutcome{
			Position:   step.Position,
			Status:     types.StepFailure,
			DurationMS: duration,
			Error:      lastErr.Error(),
		}, true
	}
}

// dispatch maps the step's action to the matching session operation.
func (e *Engine) dispatch(ctx context.Context, runID string, step types.Step, state *types.ExecutionState) (*types.Value, string, error) {
	switch step.Action {
	case types.ActionNavigate:
		url := ""
		if step.Target != nil {
			url = step.Target.URL
			if url == "" {
				url = step.Target.Value
			}
		}
		if url == "" {
			return nil, "", fmt.Errorf("navigate step %d has no url", step.Position)
		}
		if err := e.session.Navigate(ctx, url); err != nil {
			return nil, "", err
		}
		state.Session.CurrentURL = url
		return nil, "", nil

	case types.ActionClick:
		sel, err := selectorOf(step)
		if err != nil {
			return nil, "", err
		}
		return nil, "", e.session.Click(ctx, sel)

	case types.ActionInput:
		sel, err := selectorOf(step)
		if err != nil {
			return nil, "", err
		}
		value, err := e.resolveValue(ctx, step, state)
		if err != nil {
			return nil, "", err
		}
		if err := e.session.Fill(ctx, sel, value.String()); err != nil {
			return nil, "", err
		}
		return &value, "", nil

	case types.ActionSelect:
		sel, err := selectorOf(step)
		if err != nil {
			return nil, "", err
		}
		value, err := e.resolveValue(ctx, step, state)
		if err != nil {
			return nil, "", err
		}
		if err := e.session.SelectOption(ctx, sel, value.String()); err != nil {
			return nil, "", err
		}
		return &value, "", nil

	case types.ActionWait:
		sel, err := selectorOf(step)
		if err != nil {
			return nil, "", err
		}
		timeout := DefaultWaitTimeout
		if step.Validation != nil && step.Validation.TimeoutMS > 0 {
			timeout = time.Duration(step.Validation.TimeoutMS) * time.Millisecond
		}
		return nil, "", e.session.WaitForSelector(ctx, sel, timeout)

	case types.ActionVerify:
		if step.Validation == nil {
			return nil, "", fmt.Errorf("verify step %d has no validation", step.Position)
		}
		// The validation descriptor is the whole step; it is evaluated by
		// the caller after dispatch.
		return nil, "", nil

	case types.ActionScreenshot:
		data, err := e.session.Screenshot(ctx)
		if err != nil {
			return nil, "", err
		}
		ref := fmt.Sprintf("%s-step-%d", runID, step.Position)
		if err := e.storage.SaveScreenshot(ctx, ref, data); err != nil {
			return nil, "", fmt.Errorf("failed to persist screenshot: %w", err)
		}
		return nil, ref, nil

	case types.ActionExtract:
		sel, err := selectorOf(step)
		if err != nil {
			return nil, "", err
		}
		text, err := e.session.TextContent(ctx, sel)
		if err != nil {
			return nil, "", err
		}
		value := types.StringValue(text)
		if field := outputField(step); field != "" {
			state.Variables[field] = value
		}
		return &value, "", nil

	case types.ActionConditional:
		if step.Validation == nil || step.Validation.Expected == "" {
			return nil, "", fmt.Errorf("conditional step %d has no expression", step.Position)
		}
		ok, err := e.evaluator.Evaluate(step.Validation.Expected, state.Env())
		if err != nil {
			return nil, "", err
		}
		value := types.BoolValue(ok)
		if field := outputField(step); field != "" {
			state.Variables[field] = value
		}
		return &value, "", nil

	case types.ActionLoop:
		return nil, "", fmt.Errorf("loop step %d is not executable", step.Position)

	default:
		return nil, "", fmt.Errorf("unknown action %q at step %d", step.Action, step.Position)
	}
}

// resolveValue obtains a step's value from its data source and, when an
// output field is declared, records it in the variable bag so later steps
// can reference it.
func (e *Engine) resolveValue(ctx context.Context, step types.Step, state *types.ExecutionState) (types.Value, error) {
	d := step.Data
	if d == nil {
		if step.Target != nil && step.Target.Value != "" {
			return types.StringValue(step.Target.Value), nil
		}
		return types.Value{}, fmt.Errorf("step %d has no data source", step.Position)
	}

	var value types.Value
	switch d.Kind {
	case types.DataFromInput:
		v, ok := state.Variables[d.Field]
		if !ok {
			return types.Value{}, fmt.Errorf("required input %q was not provided", d.Field)
		}
		value = v

	case types.DataFromState:
		v, ok := state.Variables[d.Field]
		if !ok {
			return types.Value{}, fmt.Errorf("state variable %q is not set", d.Field)
		}
		value = v

	case types.DataFromGenerator:
		if e.values == nil {
			return types.Value{}, errors.New("no value generator configured")
		}
		v, err := e.values.Generate(ctx, d.Method)
		if err != nil {
			return types.Value{}, fmt.Errorf("generator method %q failed: %w", d.Method, err)
		}
		value = v

	case types.DataFromLiteral:
		if d.Value == nil {
			return types.Value{}, fmt.Errorf("literal data source at step %d has no value", step.Position)
		}
		value = *d.Value

	default:
		return types.Value{}, fmt.Errorf("unknown data source kind %q at step %d", d.Kind, step.Position)
	}

	if d.OutputField != "" {
		state.Variables[d.OutputField] = value
	}
	return value, nil
}

// checkValidation evaluates the step's validation descriptor; a check that
// does not hold is a step failure.
func (e *Engine) checkValidation(ctx context.Context, step types.Step, state *types.ExecutionState) error {
	v := step.Validation
	sel := ""
	if step.Target != nil {
		sel = step.Target.Selector
	}

	switch v.Kind {
	case types.ValidateExistence:
		if v.TimeoutMS > 0 {
			return e.session.WaitForSelector(ctx, sel, time.Duration(v.TimeoutMS)*time.Millisecond)
		}
		exists, err := e.session.Exists(ctx, sel)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("element %q does not exist", sel)
		}
		return nil

	case types.ValidateVisibility:
		visible, err := e.session.IsVisible(ctx, sel)
		if err != nil {
			return err
		}
		if !visible {
			return fmt.Errorf("element %q is not visible", sel)
		}
		return nil

	case types.ValidateTextContains:
		text, err := e.session.TextContent(ctx, sel)
		if err != nil {
			return err
		}
		if !strings.Contains(text, v.Expected) {
			return fmt.Errorf("element %q text does not contain %q", sel, v.Expected)
		}
		return nil

	case types.ValidateValueEquals:
		value, err := e.session.InputValue(ctx, sel)
		if err != nil {
			return err
		}
		if value != v.Expected {
			return fmt.Errorf("element %q value is %q, expected %q", sel, value, v.Expected)
		}
		return nil

	case types.ValidateCount, types.ValidateCustom:
		// The session contract exposes no element-count call, so both kinds
		// evaluate the expected expression against the variable bag.
		ok, err := e.evaluator.Evaluate(v.Expected, state.Env())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("validation expression %q did not hold", v.Expected)
		}
		return nil

	default:
		return fmt.Errorf("unknown validation kind %q at step %d", v.Kind, step.Position)
	}
}

// syntheticFailure converts a run-level fault into a failure result carrying
// a critical issue and a zero-confidence critique.
func (e *Engine) syntheticFailure(ctx context.Context, runID string, wf types.Workflow, started time.Time, state *types.ExecutionState, reason string) *types.ExecutionResult {
	crit := critique.ZeroConfidence(critique.PhaseExecution, reason)
	result := &types.ExecutionResult{
		ID:         runID,
		WorkflowID: wf.ID,
		Status:     types.RunFailure,
		StartedAt:  started.UnixMilli(),
		DurationMS: time.Since(started).Milliseconds(),
		State:      state.Clone(),
		Critique:   &crit,
	}
	e.finish(ctx, result)
	return result
}

// finish persists the result and publishes the closing events.
func (e *Engine) finish(ctx context.Context, result *types.ExecutionResult) {
	if err := e.storage.SaveResult(ctx, *result); err != nil {
		e.publishEvent(ctx, events.TypeStorageError, result.ID, map[string]interface{}{
			"error": err.Error(),
		})
	}

	e.publishEvent(ctx, events.TypeRunCompleted, result.ID, map[string]interface{}{
		"workflow_id": result.WorkflowID,
		"status":      string(result.Status),
	})
	if result.Critique != nil && result.Critique.Score.HumanReviewRequired {
		e.publishEvent(ctx, events.TypeEscalationRequired, result.ID, map[string]interface{}{
			"workflow_id": result.WorkflowID,
			"overall":     result.Critique.Score.Overall,
		})
	}
}

// publishEvent hands an event to the bus. Publish only enqueues (delivery is
// asynchronous on the bus side) so this never blocks the run loop; events are
// best-effort and a full channel or missing subscriber is not a run error.
func (e *Engine) publishEvent(ctx context.Context, eventType, runID string, data map[string]interface{}) {
	_ = e.eventBus.Publish(ctx, events.Event{
		Type:  eventType,
		RunID: runID,
		Data:  data,
	})
}

// newRunID mints a result identity from the configured generator.
func (e *Engine) newRunID() string {
	id, err := e.generate.NextID()
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("run-%d", id)
}

// validateForRun checks the structural invariants a run depends on. Execute
// requires positions contiguous from 1; Resume only requires contiguity
// from the sub-workflow's first step.
func validateForRun(wf types.Workflow, fromStart bool) error {
	if len(wf.Steps) == 0 {
		return ErrNoSteps
	}
	if fromStart && wf.Steps[0].Position != 1 {
		return fmt.Errorf("step numbering gap: expected 1, found %d", wf.Steps[0].Position)
	}
	prev := wf.Steps[0].Position
	for _, step := range wf.Steps[1:] {
		if step.Position != prev+1 {
			return fmt.Errorf("step numbering gap: expected %d, found %d", prev+1, step.Position)
		}
		prev = step.Position
	}
	for _, step := range wf.Steps {
		if step.Action == "" {
			return fmt.Errorf("step %d is missing an action", step.Position)
		}
	}
	return nil
}

// deriveStatus folds step outcomes into the run status. A run that stopped
// before producing an outcome for every planned step cannot be a success,
// even when everything it did execute succeeded.
func deriveStatus(outcomes []types.StepOutcome, planned int) types.RunStatus {
	if len(outcomes) == 0 {
		return types.RunSkipped
	}
	successes := 0
	for _, o := range outcomes {
		switch o.Status {
		case types.StepFailure:
			return types.RunFailure
		case types.StepSuccess:
			successes++
		}
	}
	if successes == len(outcomes) && len(outcomes) == planned {
		return types.RunSuccess
	}
	return types.RunPartial
}

// applyInputDefaults seeds declared defaults for inputs the caller omitted.
func applyInputDefaults(wf types.Workflow, state *types.ExecutionState) {
	for _, in := range wf.RequiredInputs {
		if in.Default == "" {
			continue
		}
		if _, ok := state.Variables[in.Name]; !ok {
			state.Variables[in.Name] = types.StringValue(in.Default)
		}
	}
}

// outputField names where a step's resolved output lands in the bag.
func outputField(step types.Step) string {
	if step.Data == nil {
		return ""
	}
	if step.Data.OutputField != "" {
		return step.Data.OutputField
	}
	return step.Data.Field
}

// selectorOf extracts the required selector target for element actions.
func selectorOf(step types.Step) (string, error) {
	if step.Target == nil || step.Target.Selector == "" {
		return "", fmt.Errorf("step %d has no target selector", step.Position)
	}
	return step.Target.Selector, nil
}
