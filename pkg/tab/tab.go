// Package tab controls browser tab lifecycle for the scan orchestrator:
// open a background tab at a URL, await load-complete with a deadline,
// interact with the page, and guarantee teardown.
package tab

import (
	"context"
	"errors"
	"time"
)

// ID identifies an open tab.
type ID string

// ErrLoadTimeout is returned by AwaitLoad when the page does not reach
// load-complete within the deadline. The orchestrator treats this as fatal
// for retry purposes.
var ErrLoadTimeout = errors.New("page load timeout")

// ErrTabClosed is returned when an operation targets a tab that no longer
// exists.
var ErrTabClosed = errors.New("tab closed")

// Controller owns browser tabs. The orchestrator holds at most one tab at a
// time and always closes it, so Close is idempotent and never reports an
// error for an unknown id.
type Controller interface {
	// Create opens a tab at url. Background tabs are not focused.
	Create(ctx context.Context, url string, background bool) (ID, error)

	// AwaitLoad blocks until the tab reports load-complete, the timeout
	// expires (ErrLoadTimeout), or ctx is done. A tab that already finished
	// loading before AwaitLoad is called returns immediately.
	AwaitLoad(ctx context.Context, id ID, timeout time.Duration) error

	// Close destroys the tab. Closing twice is equivalent to closing once.
	Close(id ID) error

	// Page returns the in-tab surface for id.
	Page(id ID) (Page, error)
}

// Page is the surface extractors drive inside one tab.
type Page interface {
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Cookies returns the name to value map of cookies visible to the
	// current document.
	Cookies(ctx context.Context) (map[string]string, error)

	// SetValue sets an input's value and dispatches synthetic input and
	// change events so framework listeners observe the edit.
	SetValue(ctx context.Context, selector, value string) error

	Click(ctx context.Context, selector string) error

	// WaitVisible blocks until an element matching selector is visible or
	// the timeout expires.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
}
