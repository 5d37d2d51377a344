// Package render provides the rendered-page capability: a browser session
// that loads a URL, lets client-side content settle and returns the final
// document.
package render

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionDead means the browser behind a Session is gone. The session
	// must be closed and a new one launched; retrying on it is pointless.
	ErrSessionDead = errors.New("browser session is dead")

	// ErrTimeout means a bounded wait expired on a live session.
	ErrTimeout = errors.New("timed out waiting for page")
)

// Session is one exclusively owned browser tab.
type Session interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Click waits up to timeout for selector and clicks it. A missing element
	// is reported as (false, nil).
	Click(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// WaitFor waits up to timeout for selector to be present. Expiry is ErrTimeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// HTML returns the outer HTML of the current document.
	HTML(ctx context.Context) (string, error)

	Close() error
}

// Launcher starts a new Session.
type Launcher func(ctx context.Context) (Session, error)
