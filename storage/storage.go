// Package storage persists workflow definitions, execution results and
// screenshot blobs behind one Storage interface with in-memory and Redis
// implementations.
package storage

import (
	"context"

	"github.com/blksails/e2e-agents/types"
)

// Storage is the artifact store contract. The engine only ever calls save
// and get shaped functions and does not depend on storage layout.
type Storage interface {
	// SaveWorkflow saves a workflow definition.
	SaveWorkflow(ctx context.Context, wf types.Workflow) error

	// GetWorkflow retrieves a workflow by ID.
	GetWorkflow(ctx context.Context, id string) (types.Workflow, error)

	// SaveResult saves an execution result.
	SaveResult(ctx context.Context, res types.ExecutionResult) error

	// GetResult retrieves an execution result by ID.
	GetResult(ctx context.Context, id string) (types.ExecutionResult, error)

	// SaveScreenshot saves a screenshot blob under a reference.
	SaveScreenshot(ctx context.Context, ref string, data []byte) error

	// GetScreenshot retrieves a screenshot blob by reference.
	GetScreenshot(ctx context.Context, ref string) ([]byte, error)

	// PruneResults removes execution results with the given terminal status.
	PruneResults(ctx context.Context, status types.RunStatus) error
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only
// return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
