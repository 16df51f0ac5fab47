package schedule

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler and Executor for tests. Time only moves on Advance and
// jobs only run on RunNext or RunAll, both on the caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
	jobs   []*ManualJob
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type ManualJob struct {
	Name string
	work func(ctx context.Context) error
	done func(error)
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) next(until time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(until) {
		return nil
	}
	return m.timers[0]
}

// Advance moves time forward by d, firing due timers in order. Timers scheduled by a callback
// fire in the same call when they fall due within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	until := m.now.Add(d)
	for {
		t := m.next(until)
		if t == nil {
			break
		}
		t.fired = true
		if t.at.After(m.now) {
			m.now = t.at
		}
		m.mu.Unlock()
		t.fn()
		m.mu.Lock()
	}
	m.now = until
	m.mu.Unlock()
}

// PendingTimers counts timers that have neither fired nor been stopped.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (m *Manual) Go(name string, work func(ctx context.Context) error, done func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, &ManualJob{Name: name, work: work, done: done})
}

// PendingJobs counts queued jobs with the given name, or all jobs when name is empty.
func (m *Manual) PendingJobs(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if name == "" || j.Name == name {
			n++
		}
	}
	return n
}

// RunNext runs the oldest job with the given name (any name when empty) and delivers its
// result. It reports whether a job ran.
func (m *Manual) RunNext(name string) bool {
	m.mu.Lock()
	var j *ManualJob
	for i, cand := range m.jobs {
		if name == "" || cand.Name == name {
			j = cand
			m.jobs = append(m.jobs[:i:i], m.jobs[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if j == nil {
		return false
	}
	j.done(j.work(context.Background()))
	return true
}

// RunAll runs jobs until none are left, including those queued while running.
func (m *Manual) RunAll() int {
	n := 0
	for m.RunNext("") {
		n++
	}
	return n
}
