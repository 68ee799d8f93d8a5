// Package browser drives a Chrome instance through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrDetached is wrapped by errors caused by a closed, crashed or
// navigated-away page. A session that returned it must be reopened.
var ErrDetached = errors.New("browser session detached")

// ErrNotOpen is returned by operations on a session that is not open.
var ErrNotOpen = errors.New("browser session not open")

// Session is a single automation tab. Blocking calls honor ctx in addition
// to their own timeouts.
type Session interface {
	Open(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs a JavaScript expression, awaiting a returned promise,
	// and decodes the JSON result into out (which may be nil).
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	IsLive(ctx context.Context) bool
	Close() error
}
