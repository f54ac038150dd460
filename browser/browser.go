// Package browser wraps a controllable browser behind a small capability
// interface and provides the bounded waits and page-load retry policy the
// scrapers are built on.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a selector matches no element.
	ErrNotFound = errors.New("element not found")
	// ErrTimeout is returned by WaitUntil when the predicate never held.
	ErrTimeout = errors.New("timed out waiting for condition")
)

// Selector addresses an element by CSS query or XPath expression.
type Selector struct {
	Query string
	XPath bool
}

// CSS returns a CSS selector.
func CSS(query string) Selector { return Selector{Query: query} }

// XPath returns an XPath selector.
func XPath(query string) Selector { return Selector{Query: query, XPath: true} }

// Parse treats queries starting with "/" or "(" as XPath and anything else as CSS.
func Parse(query string) Selector {
	q := strings.TrimSpace(query)
	if strings.HasPrefix(q, "/") || strings.HasPrefix(q, "(") {
		return XPath(q)
	}
	return CSS(q)
}

func (s Selector) String() string {
	if s.XPath {
		return "xpath:" + s.Query
	}
	return s.Query
}

// Browser is everything the scrapers need from a browser session. All element
// operations address the first element matching the selector and return
// ErrNotFound when nothing matches.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	PageSource(ctx context.Context) (string, error)

	Exists(ctx context.Context, sel Selector) (bool, error)
	Visible(ctx context.Context, sel Selector) (bool, error)
	ScrollIntoView(ctx context.Context, sel Selector) error
	Click(ctx context.Context, sel Selector) error

	SelectedValue(ctx context.Context, sel Selector) (string, error)
	SetSelectValue(ctx context.Context, sel Selector, value string) error

	// Links returns the resolved href of every anchor inside sel, in document order.
	Links(ctx context.Context, sel Selector) ([]string, error)
	OuterHTML(ctx context.Context, sel Selector) (string, error)
}

// Predicate is polled by WaitUntil until it returns true.
type Predicate func(ctx context.Context) (bool, error)

// WaitUntil polls pred every poll interval until it returns true, timeout
// elapses or ctx is cancelled. Predicate errors are treated as "not yet" and
// the last one is reported with the timeout.
func WaitUntil(ctx context.Context, timeout, poll time.Duration, pred Predicate) error {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		ok, err := pred(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}

		wait := poll
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Present holds when sel matches an element.
func Present(b Browser, sel Selector) Predicate {
	return func(ctx context.Context) (bool, error) {
		return b.Exists(ctx, sel)
	}
}

// AnyPresent holds when any of sels matches an element.
func AnyPresent(b Browser, sels ...Selector) Predicate {
	return func(ctx context.Context) (bool, error) {
		var lastErr error
		for _, sel := range sels {
			ok, err := b.Exists(ctx, sel)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, lastErr
	}
}

// IsVisible holds when sel matches a rendered, displayed element.
func IsVisible(b Browser, sel Selector) Predicate {
	return func(ctx context.Context) (bool, error) {
		return b.Visible(ctx, sel)
	}
}

// IsHidden holds when sel matches nothing or matches an element that is not displayed.
func IsHidden(b Browser, sel Selector) Predicate {
	return func(ctx context.Context) (bool, error) {
		visible, err := b.Visible(ctx, sel)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return !visible, nil
	}
}

// HasValue holds when the select element sel reports value.
func HasValue(b Browser, sel Selector, value string) Predicate {
	return func(ctx context.Context) (bool, error) {
		got, err := b.SelectedValue(ctx, sel)
		if err != nil {
			return false, err
		}
		return got == value, nil
	}
}
