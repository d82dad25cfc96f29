package workflow

import (
	"context"
	"time"

	"github.com/blksails/e2e-agents/types"
)

// Session is the browser-automation collaborator the engine drives. Every
// call may fail with a session error, which the engine records as a step
// failure and never propagates.
type Session interface {
	// Navigate loads the given URL.
	Navigate(ctx context.Context, url string) error

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) error

	// Fill types value into the element matched by selector.
	Fill(ctx context.Context, selector, value string) error

	// SelectOption selects value in the element matched by selector.
	SelectOption(ctx context.Context, selector, value string) error

	// WaitForSelector blocks until selector matches or timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// TextContent returns the text content of the matched element.
	TextContent(ctx context.Context, selector string) (string, error)

	// Exists reports whether selector matches any element.
	Exists(ctx context.Context, selector string) (bool, error)

	// IsVisible reports whether the matched element is visible.
	IsVisible(ctx context.Context, selector string) (bool, error)

	// InputValue returns the current value of the matched input element.
	InputValue(ctx context.Context, selector string) (string, error)

	// Screenshot captures the current page as image bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// ValueGenerator produces values for steps with a generator data source,
// keyed by method name (for example "email" or "phone").
type ValueGenerator interface {
	Generate(ctx context.Context, method string) (types.Value, error)
}
