package schedule

import (
	"context"
	"errors"
)

// ErrSuperseded is passed to the done callback of a queued job replaced by a newer one.
var ErrSuperseded = errors.New("superseded by a newer job")

type job struct {
	work func(ctx context.Context) error
	done func(error)
}

// Queue runs at most one job at a time. While a job is in flight only the most recently
// submitted job is kept; the one it replaces completes with ErrSuperseded.
type Queue struct {
	exec Executor
	name string

	busy    bool
	pending *job
}

func NewQueue(exec Executor, name string) *Queue {
	return &Queue{exec: exec, name: name}
}

func (q *Queue) Submit(work func(ctx context.Context) error, done func(error)) {
	j := &job{work: work, done: done}
	if !q.busy {
		q.start(j)
		return
	}

	prev := q.pending
	q.pending = j
	if prev != nil {
		scheduleLogger.Debug().Str("queue", q.name).Msg("Pending job superseded")
		if prev.done != nil {
			prev.done(ErrSuperseded)
		}
	}
}

func (q *Queue) start(j *job) {
	q.busy = true
	q.exec.Go(q.name, j.work, func(err error) {
		q.finish(j, err)
	})
}

// finish starts the next job before reporting, so Busy is accurate inside done.
func (q *Queue) finish(j *job, err error) {
	q.busy = false
	if next := q.pending; next != nil {
		q.pending = nil
		q.start(next)
	}
	if j.done != nil {
		j.done(err)
	}
}

// Busy reports whether a job is in flight.
func (q *Queue) Busy() bool {
	return q.busy
}

// Cancel drops the job waiting behind the one in flight, completing it with ErrSuperseded.
// The job in flight is not interrupted. It reports whether a job was dropped.
func (q *Queue) Cancel() bool {
	j := q.pending
	if j == nil {
		return false
	}
	q.pending = nil
	scheduleLogger.Debug().Str("queue", q.name).Msg("Pending job cancelled")
	if j.done != nil {
		j.done(ErrSuperseded)
	}
	return true
}
