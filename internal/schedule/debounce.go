package schedule

import "time"

// Debouncer delays fn until delay has passed since the last Trigger. At most one timer is
// pending per Debouncer; a fire from a replaced timer is dropped by its generation check.
type Debouncer struct {
	s     Scheduler
	name  string
	delay time.Duration
	fn    func()

	timer Timer
	gen   uint64
}

func NewDebouncer(s Scheduler, name string, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		s:     s,
		name:  name,
		delay: delay,
		fn:    fn,
	}
}

func (d *Debouncer) Trigger() {
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.s.AfterFunc(d.delay, func() {
		if gen != d.gen {
			scheduleLogger.Trace().Str("debouncer", d.name).Msg("Dropping stale fire")
			return
		}
		d.timer = nil
		d.fn()
	})
}

func (d *Debouncer) Stop() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
