package epma

import (
	"context"
	"time"
)

// Driver is a single browser tab that can find EPMA elements.
// Failures are returned as *errors.Error with a timeout, not_found, stale,
// click_intercepted or browser type; a cancelled ctx is returned as is.
type Driver interface {
	// Navigate loads url and waits for the page load event
	Navigate(ctx context.Context, url string) error
	// URL returns the current page URL
	URL(ctx context.Context) (string, error)
	// WaitURLContains waits until the page URL contains substr
	WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error

	// WaitVisible waits for an element that is present and visible
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// WaitClickable waits for an element that is visible and not covered
	WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// WaitPresent waits for an element in the DOM, visible or not
	WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// FindAll waits until at least one element matches and returns all matches
	FindAll(ctx context.Context, loc Locator, timeout time.Duration) ([]Element, error)
	// Find looks for an element once without waiting
	Find(ctx context.Context, loc Locator) (Element, error)

	Close() error
}

// Element is a handle to a DOM node. Handles go stale when EPMA re-renders
// the node.
type Element interface {
	Click(ctx context.Context) error
	// Input types text at the current caret
	Input(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	PressEnter(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent
	Attribute(ctx context.Context, name string) (string, error)
	// Value returns the live value property of a form field
	Value(ctx context.Context) (string, error)
}

type actionTimeoutKey struct{}

// WithActionTimeout returns a ctx under which element actions wait up to d
// instead of the driver's default action timeout.
func WithActionTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, actionTimeoutKey{}, d)
}

// ActionTimeout returns the action timeout carried by ctx, or def
func ActionTimeout(ctx context.Context, def time.Duration) time.Duration {
	if d, ok := ctx.Value(actionTimeoutKey{}).(time.Duration); ok && d > 0 {
		return d
	}
	return def
}
