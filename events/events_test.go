package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var received atomic.Int32
	done := make(chan struct{})

	bus.SubscribeFunc(TypeStepCompleted, func(ctx context.Context, event Event) error {
		if event.RunID != "run-1" {
			t.Errorf("unexpected run ID %s", event.RunID)
		}
		if event.Data["position"] != 3 {
			t.Errorf("unexpected data %v", event.Data)
		}
		received.Add(1)
		close(done)
		return nil
	})

	err := bus.Publish(context.Background(), Event{
		Type:  TypeStepCompleted,
		RunID: "run-1",
		Data:  map[string]interface{}{"position": 3},
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
}

func TestPublishNoHandler(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	err := bus.Publish(context.Background(), Event{Type: TypeRunStarted, RunID: "run-1"})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestPublishClosedBus(t *testing.T) {
	bus := NewEventBus()
	bus.SubscribeFunc(TypeRunStarted, func(ctx context.Context, event Event) error { return nil })
	bus.Stop()

	err := bus.Publish(context.Background(), Event{Type: TypeRunStarted, RunID: "run-1"})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}

func TestPublishCanceledContext(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()
	bus.SubscribeFunc(TypeRunStarted, func(ctx context.Context, event Event) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Publish(ctx, Event{Type: TypeRunStarted, RunID: "run-1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHasSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	if bus.HasSubscribers(TypeStepFailed) {
		t.Error("expected no subscribers before Subscribe")
	}

	bus.SubscribeFunc(TypeStepFailed, func(ctx context.Context, event Event) error { return nil })

	if !bus.HasSubscribers(TypeStepFailed) {
		t.Error("expected a subscriber after Subscribe")
	}
	if bus.HasSubscribers(TypeEscalationRequired) {
		t.Error("subscription must not leak to other types")
	}
}

func TestPublishSync(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var order []string
	var mu sync.Mutex

	bus.SubscribeFunc(TypeRunCompleted, func(ctx context.Context, event Event) error {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return nil
	})
	bus.SubscribeFunc(TypeRunCompleted, func(ctx context.Context, event Event) error {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return errors.New("handler failed")
	})

	errs := bus.PublishSync(context.Background(), Event{Type: TypeRunCompleted, RunID: "run-1"})

	if len(errs) != 1 {
		t.Fatalf("expected 1 handler error, got %d: %v", len(errs), errs)
	}
	if errs[0].Error() != "handler failed" {
		t.Errorf("unexpected error: %v", errs[0])
	}
	mu.Lock()
	if len(order) != 2 {
		t.Errorf("expected both handlers to run, got %v", order)
	}
	mu.Unlock()
}

func TestPublishSyncNoHandler(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	errs := bus.PublishSync(context.Background(), Event{Type: TypeStorageError, RunID: "run-1"})
	if len(errs) != 1 || !errors.Is(errs[0], ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", errs)
	}
}

func TestErrorHandlerReceivesHandlerErrors(t *testing.T) {
	handlerErr := errors.New("delivery failed")
	done := make(chan error, 1)

	bus := NewEventBus(WithErrorHandler(func(event Event, err error) {
		done <- err
	}))
	defer bus.Stop()

	bus.SubscribeFunc(TypeStepFailed, func(ctx context.Context, event Event) error {
		return handlerErr
	})

	if err := bus.Publish(context.Background(), Event{Type: TypeStepFailed, RunID: "run-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, handlerErr) {
			t.Errorf("expected handler error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler was not invoked")
	}
}

func TestBufferSizeOption(t *testing.T) {
	// A zero-size buffer with a slow consumer makes the channel-full path
	// observable.
	block := make(chan struct{})
	bus := NewEventBus(WithBufferSize(0))
	defer func() {
		close(block)
		bus.Stop()
	}()

	bus.SubscribeFunc(TypeRunStarted, func(ctx context.Context, event Event) error {
		<-block
		return nil
	})

	// Saturate the processing goroutine, then fill the unbuffered channel.
	sawFull := false
	for i := 0; i < 50; i++ {
		if err := bus.Publish(context.Background(), Event{Type: TypeRunStarted}); errors.Is(err, ErrChannelFull) {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Error("expected ErrChannelFull once the buffer is saturated")
	}
}

// TestStopDuringConcurrentPublish races Stop against in-flight publishes:
// every publisher must either enqueue or get ErrBusClosed, never panic on a
// closed channel.
func TestStopDuringConcurrentPublish(t *testing.T) {
	bus := NewEventBus(WithBufferSize(4))
	bus.SubscribeFunc(TypeRunCompleted, func(ctx context.Context, event Event) error { return nil })

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				err := bus.Publish(context.Background(), Event{Type: TypeRunCompleted, RunID: "run-1"})
				if errors.Is(err, ErrBusClosed) {
					return
				}
			}
		}()
	}

	close(start)
	bus.Stop()
	wg.Wait()
}

func TestStopIsIdempotent(t *testing.T) {
	bus := NewEventBus()
	bus.Stop()
	bus.Stop()
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewEventBus(WithBufferSize(256))
	defer bus.Stop()

	var delivered atomic.Int32
	bus.SubscribeFunc(TypeStepCompleted, func(ctx context.Context, event Event) error {
		delivered.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), Event{Type: TypeStepCompleted, RunID: "run-1"})
		}()
	}
	wg.Wait()

	deadline := time.After(2 * time.Second)
	for delivered.Load() < 100 {
		select {
		case <-deadline:
			t.Fatalf("expected 100 deliveries, got %d", delivered.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
