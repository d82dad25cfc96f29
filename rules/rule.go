package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator evaluates validation and success-criteria expressions against a
// run's variable bag.
type Evaluator interface {
	Evaluate(expression string, env map[string]interface{}) (bool, error)
}

// ExprEvaluator is the expr-lang backed Evaluator. Compiled programs are
// cached per expression; the same criterion is typically checked across many
// runs.
type ExprEvaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewExprEvaluator creates an ExprEvaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate compiles (or reuses) the expression and runs it against env.
// The expression must yield a boolean; anything else is an error.
func (e *ExprEvaluator) Evaluate(expression string, env map[string]interface{}) (bool, error) {
	if env == nil {
		env = map[string]interface{}{}
	}

	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if program, ok = e.cache[expression]; !ok {
			var err error
			// Compiled untyped so one cached program serves every run's
			// variable bag.
			program, err = expr.Compile(expression, expr.AllowUndefinedVariables())
			if err != nil {
				e.mu.Unlock()
				return false, err
			}
			e.cache[expression] = program
		}
		e.mu.Unlock()
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression '%s' did not evaluate to a boolean, got %T", expression, result)
	}
	return boolResult, nil
}
