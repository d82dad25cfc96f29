package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/blksails/e2e-agents/types"
)

const (
	workflowPrefix   = "workflow:"
	resultPrefix     = "result:"
	screenshotPrefix = "screenshot:"
)

// ErrNotFound is returned when a requested resource is not found.
var ErrNotFound = errors.New("resource not found")

// RedisStorage is a Redis-backed implementation of the Storage interface.
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStorage{client: client}, nil
}

// saveJSON marshals and stores a value under prefix+id.
func (s *RedisStorage) saveJSON(ctx context.Context, prefix, id string, value interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s%s: %v", prefix, id, err)
		}
		key := prefix + id
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// getJSON retrieves and unmarshals a value stored under prefix+id.
func getJSON[T any](ctx context.Context, client *redis.Client, prefix, id string) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		key := prefix + id
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("%w: key=%s", ErrNotFound, key)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return result, nil
	})
}

// SaveWorkflow saves a workflow to Redis.
func (s *RedisStorage) SaveWorkflow(ctx context.Context, wf types.Workflow) error {
	return s.saveJSON(ctx, workflowPrefix, wf.ID, wf)
}

// GetWorkflow retrieves a workflow from Redis.
func (s *RedisStorage) GetWorkflow(ctx context.Context, id string) (types.Workflow, error) {
	return getJSON[types.Workflow](ctx, s.client, workflowPrefix, id)
}

// SaveResult saves an execution result to Redis.
func (s *RedisStorage) SaveResult(ctx context.Context, res types.ExecutionResult) error {
	return s.saveJSON(ctx, resultPrefix, res.ID, res)
}

// GetResult retrieves an execution result from Redis.
func (s *RedisStorage) GetResult(ctx context.Context, id string) (types.ExecutionResult, error) {
	return getJSON[types.ExecutionResult](ctx, s.client, resultPrefix, id)
}

// SaveScreenshot saves a screenshot blob to Redis as raw bytes.
func (s *RedisStorage) SaveScreenshot(ctx context.Context, ref string, data []byte) error {
	return withContextError(ctx, func() error {
		key := screenshotPrefix + ref
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// GetScreenshot retrieves a screenshot blob from Redis.
func (s *RedisStorage) GetScreenshot(ctx context.Context, ref string) ([]byte, error) {
	return withContext(ctx, func() ([]byte, error) {
		key := screenshotPrefix + ref
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: key=%s", ErrNotFound, key)
		} else if err != nil {
			return nil, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}
		return data, nil
	})
}

// SaveWorkflows saves multiple workflows to Redis using pipelining.
func (s *RedisStorage) SaveWorkflows(ctx context.Context, wfs []types.Workflow) error {
	return withContextError(ctx, func() error {
		pipe := s.client.Pipeline()
		for _, wf := range wfs {
			data, err := json.Marshal(wf)
			if err != nil {
				return fmt.Errorf("failed to marshal workflow %s: %v", wf.ID, err)
			}
			pipe.Set(ctx, workflowPrefix+wf.ID, data, 0)
		}
		_, err := pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to execute pipeline for workflows: %v", err)
		}
		return nil
	})
}

// PruneResults removes execution results with the given status from Redis.
func (s *RedisStorage) PruneResults(ctx context.Context, status types.RunStatus) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, resultPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan result keys: %v", err)
		}
		if len(keys) == 0 {
			return nil
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var res types.ExecutionResult
			if err := json.Unmarshal(data, &res); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}
			if res.Status == status {
				pipe.Del(ctx, key)
			}
		}

		_, err = pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
