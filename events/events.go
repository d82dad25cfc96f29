// Package events provides the asynchronous bus the execution engine uses to
// publish run lifecycle notifications.
package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// ErrBusClosed indicates the event bus has been closed.
	ErrBusClosed = errors.New("event bus is closed")
	// ErrChannelFull indicates the event channel is full and cannot accept more events.
	ErrChannelFull = errors.New("event channel is full")
	// ErrNoHandler indicates no handlers are registered for the event type.
	ErrNoHandler = errors.New("no handlers registered for event type")
)

// Run lifecycle event types.
const (
	TypeRunStarted         = "run_started"
	TypeRunCompleted       = "run_completed"
	TypeStepCompleted      = "step_completed"
	TypeStepFailed         = "step_failed"
	TypeEscalationRequired = "escalation_required"
	TypeStorageError       = "storage_error"
)

// Event is one run lifecycle notification.
type Event struct {
	Type  string                 // one of the Type* constants
	RunID string                 // execution result ID the event belongs to
	Data  map[string]interface{} // additional event data
}

// EventHandler defines the interface for handling events.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// EventHandlerFunc is a function adapter for EventHandler.
type EventHandlerFunc func(ctx context.Context, event Event) error

// Handle implements the EventHandler interface.
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// EventBus manages event subscriptions and asynchronous publishing.
type EventBus struct {
	handlers     map[string][]EventHandler
	mu           sync.RWMutex
	eventCh      chan Event
	errHandler   func(event Event, err error)
	errHandlerMu sync.RWMutex
	wg           sync.WaitGroup
	closed       bool
	closeMu      sync.RWMutex
}

// EventBusOption defines functional options for configuring EventBus.
type EventBusOption func(*EventBus)

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) EventBusOption {
	return func(eb *EventBus) {
		eb.eventCh = make(chan Event, size)
	}
}

// WithErrorHandler sets a custom handler for errors returned by subscribers.
func WithErrorHandler(handler func(event Event, err error)) EventBusOption {
	return func(eb *EventBus) {
		eb.errHandlerMu.Lock()
		defer eb.errHandlerMu.Unlock()
		eb.errHandler = handler
	}
}

// NewEventBus creates an EventBus and starts its processing goroutine. The
// default buffer size is 100.
func NewEventBus(options ...EventBusOption) *EventBus {
	eb := &EventBus{
		handlers:   make(map[string][]EventHandler),
		eventCh:    make(chan Event, 100),
		errHandler: defaultErrorHandler,
	}

	for _, option := range options {
		option(eb)
	}

	eb.wg.Add(1)
	go eb.processEvents()

	return eb
}

// Subscribe subscribes a handler to an event type.
func (eb *EventBus) Subscribe(eventType string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeFunc subscribes a function as a handler to an event type.
func (eb *EventBus) SubscribeFunc(eventType string, handlerFunc func(ctx context.Context, event Event) error) {
	eb.Subscribe(eventType, EventHandlerFunc(handlerFunc))
}

// HasSubscribers reports whether any handler is registered for the type.
func (eb *EventBus) HasSubscribers(eventType string) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	handlers, exists := eb.handlers[eventType]
	return exists && len(handlers) > 0
}

// Publish enqueues an event for asynchronous delivery. Returns an error if
// the context is canceled, the bus is closed, no handler is subscribed, or
// the channel is full; delivery itself happens on the processing goroutine.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// The read lock is held across the send so Stop cannot close the
	// channel between the closed check and the enqueue.
	eb.closeMu.RLock()
	defer eb.closeMu.RUnlock()

	if eb.closed {
		return ErrBusClosed
	}

	if !eb.HasSubscribers(event.Type) {
		return ErrNoHandler
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case eb.eventCh <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// PublishSync delivers an event to all handlers before returning, collecting
// their errors. Delivery is bounded by a 5-second timeout unless the context
// imposes a tighter one.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) []error {
	eb.closeMu.RLock()
	if eb.closed {
		eb.closeMu.RUnlock()
		return []error{ErrBusClosed}
	}
	eb.closeMu.RUnlock()

	eb.mu.RLock()
	handlers, ok := eb.handlers[event.Type]
	eb.mu.RUnlock()

	if !ok || len(handlers) == 0 {
		return []error{ErrNoHandler}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return eb.executeHandlers(timeoutCtx, handlers, event)
}

// Stop stops the processing goroutine and waits for it to finish. Queued
// but undelivered events are discarded.
func (eb *EventBus) Stop() {
	eb.closeMu.Lock()
	if !eb.closed {
		eb.closed = true
		for len(eb.eventCh) > 0 {
			<-eb.eventCh
		}
		close(eb.eventCh)
	}
	eb.closeMu.Unlock()

	eb.wg.Wait()
}

func (eb *EventBus) processEvents() {
	defer eb.wg.Done()

	for event := range eb.eventCh {
		eb.mu.RLock()
		handlers, ok := eb.handlers[event.Type]
		eb.mu.RUnlock()

		if !ok || len(handlers) == 0 {
			continue
		}

		errs := eb.executeHandlers(context.Background(), handlers, event)

		eb.errHandlerMu.RLock()
		handler := eb.errHandler
		eb.errHandlerMu.RUnlock()

		for _, err := range errs {
			handler(event, err)
		}
	}
}

// executeHandlers runs all handlers concurrently and collects their errors.
func (eb *EventBus) executeHandlers(ctx context.Context, handlers []EventHandler, event Event) []error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h EventHandler) {
			defer wg.Done()
			if err := h.Handle(ctx, event); err != nil {
				errCh <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errs
}

func defaultErrorHandler(event Event, err error) {
	fmt.Printf("Error handling event %s (run %s): %v\nStack: %s\n",
		event.Type, event.RunID, err, debug.Stack())
}
