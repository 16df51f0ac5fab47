// Package schedule provides the single-goroutine event loop the editor runs on, plus the
// cancel-and-reschedule timers and serialised job queues built on top of it.
//
// Nothing in this package is safe for concurrent use except Loop's Post and Do: every other
// type expects to be driven from the loop goroutine.
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

var scheduleLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	scheduleLogger = l
}

type Timer interface {
	// Stop cancels the timer, reporting whether it was still pending.
	Stop() bool
}

// Scheduler runs fn on the loop once d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Executor runs blocking work off the loop and delivers its result back onto it.
type Executor interface {
	Go(name string, work func(ctx context.Context) error, done func(error))
}
