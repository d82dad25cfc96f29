package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExprEvaluator tests the ExprEvaluator implementation.
func TestExprEvaluator(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		env        map[string]interface{}
		wantResult bool
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "Valid true expression",
			expression: `greeting contains "Welcome"`,
			env:        map[string]interface{}{"greeting": "Welcome back!"},
			wantResult: true,
			wantErr:    false,
		},
		{
			name:       "Valid false expression",
			expression: "attempts > 3",
			env:        map[string]interface{}{"attempts": 2},
			wantResult: false,
			wantErr:    false,
		},
		{
			name:       "Non-boolean result",
			expression: "attempts + 5",
			env:        map[string]interface{}{"attempts": 2},
			wantResult: false,
			wantErr:    true,
			errMsg:     "did not evaluate to a boolean",
		},
		{
			name:       "Invalid expression",
			expression: "attempts >>> 3",
			env:        map[string]interface{}{"attempts": 2},
			wantResult: false,
			wantErr:    true,
		},
		{
			name:       "Nil environment",
			expression: "1 < 2",
			env:        nil,
			wantResult: true,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(tt.expression, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				assert.Equal(t, tt.wantResult, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantResult, result)
			}
		})
	}

	t.Run("Cached program serves different environments", func(t *testing.T) {
		expression := "score > 10"

		result, err := evaluator.Evaluate(expression, map[string]interface{}{"score": 15})
		assert.NoError(t, err)
		assert.True(t, result)

		result, err = evaluator.Evaluate(expression, map[string]interface{}{"score": 5})
		assert.NoError(t, err)
		assert.False(t, result)
	})

	t.Run("Concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(score int) {
				defer wg.Done()
				result, err := evaluator.Evaluate("score >= 0", map[string]interface{}{"score": score})
				assert.NoError(t, err)
				assert.True(t, result)
			}(i)
		}
		wg.Wait()
	})
}
