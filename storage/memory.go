package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blksails/e2e-agents/types"
)

// Errors
var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrResultNotFound     = errors.New("execution result not found")
	ErrScreenshotNotFound = errors.New("screenshot not found")
)

// MemoryStorage is an in-memory implementation of the Storage interface.
type MemoryStorage struct {
	workflows   map[string]types.Workflow
	results     map[string]types.ExecutionResult
	screenshots map[string][]byte
	mu          sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		workflows:   make(map[string]types.Workflow),
		results:     make(map[string]types.ExecutionResult),
		screenshots: make(map[string][]byte),
	}
}

// getItem is a standalone generic helper function.
func getItem[T any](ctx context.Context, mu *sync.RWMutex, m map[string]T, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		defer mu.RUnlock()
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		}
		return item, nil
	})
}

// SaveWorkflow saves a workflow to memory.
func (s *MemoryStorage) SaveWorkflow(ctx context.Context, wf types.Workflow) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.workflows[wf.ID] = wf
		return nil
	})
}

// GetWorkflow retrieves a workflow from memory.
func (s *MemoryStorage) GetWorkflow(ctx context.Context, id string) (types.Workflow, error) {
	return getItem(ctx, &s.mu, s.workflows, id, ErrWorkflowNotFound)
}

// SaveResult saves an execution result to memory.
func (s *MemoryStorage) SaveResult(ctx context.Context, res types.ExecutionResult) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.results[res.ID] = res
		return nil
	})
}

// GetResult retrieves an execution result from memory.
func (s *MemoryStorage) GetResult(ctx context.Context, id string) (types.ExecutionResult, error) {
	return getItem(ctx, &s.mu, s.results, id, ErrResultNotFound)
}

// SaveScreenshot saves a screenshot blob to memory.
func (s *MemoryStorage) SaveScreenshot(ctx context.Context, ref string, data []byte) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.screenshots[ref] = append([]byte(nil), data...)
		return nil
	})
}

// GetScreenshot retrieves a screenshot blob from memory.
func (s *MemoryStorage) GetScreenshot(ctx context.Context, ref string) ([]byte, error) {
	return getItem(ctx, &s.mu, s.screenshots, ref, ErrScreenshotNotFound)
}

// SaveWorkflows saves multiple workflows in a single lock.
func (s *MemoryStorage) SaveWorkflows(ctx context.Context, wfs []types.Workflow) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, wf := range wfs {
			s.workflows[wf.ID] = wf
		}
		return nil
	})
}

// PruneResults removes execution results with the given status.
func (s *MemoryStorage) PruneResults(ctx context.Context, status types.RunStatus) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, res := range s.results {
			if res.Status == status {
				delete(s.results, id)
			}
		}
		return nil
	})
}
