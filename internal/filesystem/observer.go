package filesystem

import (
	"sync/atomic"
	"time"
)

// Event summarizes one filesystem call, including its retries.
type Event struct {
	Op     string
	Volume string
	// Calls is the number of times the operation ran.
	Calls int
	// Stale counts ESTALE failures among the calls.
	Stale    int
	Duration time.Duration
	Err      error
}

// Retried reports whether the call hit at least one stale handle.
func (e Event) Retried() bool {
	return e.Stale > 0
}

// Observer receives an Event after every filesystem call.
type Observer func(Event)

var observer atomic.Pointer[Observer]

// SetObserver installs the package-level observer. A nil observer stops
// reporting.
func SetObserver(o Observer) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&o)
}

func report(e Event) {
	if o := observer.Load(); o != nil {
		(*o)(e)
	}
}
