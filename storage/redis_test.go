package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blksails/e2e-agents/types"
)

// newTestRedisStorage connects to a local Redis or skips the test when none
// is available.
func newTestRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	store, err := NewRedisStorage(RedisOptions{Addr: "localhost:6379", DB: 15})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStorageWorkflows(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStorage(t)

	t.Run("save and get", func(t *testing.T) {
		wf := testWorkflow("wf-redis-1")
		require.NoError(t, store.SaveWorkflow(ctx, wf))

		got, err := store.GetWorkflow(ctx, "wf-redis-1")
		require.NoError(t, err)
		assert.Equal(t, wf.Name, got.Name)
		assert.Len(t, got.Steps, 2)
		assert.Equal(t, "#add-to-cart", got.Steps[1].Target.Selector)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetWorkflow(ctx, "wf-redis-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bulk save pipelined", func(t *testing.T) {
		wfs := []types.Workflow{testWorkflow("wf-redis-2"), testWorkflow("wf-redis-3")}
		require.NoError(t, store.SaveWorkflows(ctx, wfs))

		for _, id := range []string{"wf-redis-2", "wf-redis-3"} {
			_, err := store.GetWorkflow(ctx, id)
			assert.NoError(t, err)
		}
	})
}

func TestRedisStorageResults(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStorage(t)

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, store.SaveResult(ctx, testResult("run-redis-1", types.RunPartial)))

		got, err := store.GetResult(ctx, "run-redis-1")
		require.NoError(t, err)
		assert.Equal(t, types.RunPartial, got.Status)
		assert.Len(t, got.Outcomes, 1)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetResult(ctx, "run-redis-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("prune by status", func(t *testing.T) {
		require.NoError(t, store.SaveResult(ctx, testResult("run-redis-ok", types.RunSuccess)))
		require.NoError(t, store.SaveResult(ctx, testResult("run-redis-bad", types.RunFailure)))

		require.NoError(t, store.PruneResults(ctx, types.RunFailure))

		_, err := store.GetResult(ctx, "run-redis-bad")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetResult(ctx, "run-redis-ok")
		assert.NoError(t, err)
	})
}

func TestRedisStorageScreenshots(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStorage(t)

	data := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}
	require.NoError(t, store.SaveScreenshot(ctx, "run-redis-1-step-2", data))

	got, err := store.GetScreenshot(ctx, "run-redis-1-step-2")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.GetScreenshot(ctx, "run-redis-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorageValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStorage(t)

	literal := types.StructuredValue(map[string]interface{}{"sku": "A-100", "qty": float64(2)})
	wf := testWorkflow("wf-redis-values")
	wf.Steps[1].Data = &types.DataSource{Kind: types.DataFromLiteral, Value: &literal}

	require.NoError(t, store.SaveWorkflow(ctx, wf))

	got, err := store.GetWorkflow(ctx, "wf-redis-values")
	require.NoError(t, err)
	require.NotNil(t, got.Steps[1].Data)
	require.NotNil(t, got.Steps[1].Data.Value)
	assert.True(t, literal.Equal(*got.Steps[1].Data.Value))
}
