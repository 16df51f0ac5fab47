package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrLoopStopped = errors.New("event loop stopped")
	ErrJobPanic    = errors.New("job panicked")
)

// Loop executes posted closures one at a time on the goroutine that called Run. It implements
// Scheduler and Executor, so timers and I/O completions are serialised with everything else.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	closed  bool
	ctx     context.Context

	// jobs counts Go workers still running, so shutdown can wait for them before storage
	// is closed underneath.
	jobs sync.WaitGroup
}

func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
	}
}

// Run drains posted work until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.stopped)
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.exec(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			scheduleLogger.Error().Any("panic", r).Msg("Recovered panic on event loop")
		}
	}()
	fn()
}

// Post queues fn for the loop. It never blocks and reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for its result. It must not be called from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	ok := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic on event loop: %v", r)
			}
		}()
		result <- fn()
	})
	if !ok {
		return ErrLoopStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
}

type loopTimer struct {
	t *time.Timer
}

func (t loopTimer) Stop() bool {
	return t.t.Stop()
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return loopTimer{t: time.AfterFunc(d, func() {
		l.Post(fn)
	})}
}

func (l *Loop) Now() time.Time {
	return time.Now().UTC()
}

func (l *Loop) Go(name string, work func(ctx context.Context) error, done func(error)) {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	l.jobs.Add(1)
	go func() {
		defer l.jobs.Done()

		start := time.Now()
		err := runJob(ctx, name, work)
		scheduleLogger.Debug().Str("job", name).Dur("took", time.Since(start)).Err(err).Msg("Job finished")

		if !l.Post(func() { done(err) }) {
			scheduleLogger.Warn().Str("job", name).Msg("Dropping job result, loop stopped")
		}
	}()
}

// runJob calls work, turning a panic into an error so a failing job cannot take the process
// down with it.
func runJob(ctx context.Context, name string, work func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			scheduleLogger.Error().Str("job", name).Any("panic", r).Msg("Recovered panic in job")
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()
	return work(ctx)
}

// Wait blocks until Run has returned and every job started with Go has finished, or ctx is
// done. Call it after cancelling Run's context and before releasing what the jobs use.
func (l *Loop) Wait(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		<-l.stopped
		l.jobs.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
