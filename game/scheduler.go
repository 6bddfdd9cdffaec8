package game

import "time"

// Handle identifies a pending timer. The zero Handle never refers to a timer,
// so it is safe to Cancel.
type Handle uint64

type timer struct {
	handle    Handle
	callback  func()
	deadline  time.Time
	period    time.Duration
	remaining time.Duration
}

// Scheduler is a logical clock for one room. It never reads the wall clock:
// time only moves when Advance is called, and due callbacks run synchronously
// inside Advance on the caller's goroutine.
//
// Callbacks may schedule, cancel or pause timers. A cancelled timer never
// fires, even when it was already due in the same Advance.
type Scheduler struct {
	now    time.Time
	timers map[Handle]*timer
	last   Handle
	paused bool
}

func NewScheduler(now time.Time) *Scheduler {
	return &Scheduler{
		now:    now,
		timers: make(map[Handle]*timer),
	}
}

func (s *Scheduler) Now() time.Time {
	return s.now
}

func (s *Scheduler) Paused() bool {
	return s.paused
}

func (s *Scheduler) Pending() int {
	return len(s.timers)
}

func (s *Scheduler) SetTimeout(callback func(), delay time.Duration) Handle {
	return s.add(callback, delay, 0)
}

func (s *Scheduler) SetInterval(callback func(), period time.Duration) Handle {
	if period <= 0 {
		panic("scheduler: interval period must be positive")
	}
	return s.add(callback, period, period)
}

func (s *Scheduler) add(callback func(), delay, period time.Duration) Handle {
	if delay < 0 {
		delay = 0
	}
	s.last++
	t := &timer{
		handle:   s.last,
		callback: callback,
		period:   period,
	}
	if s.paused {
		t.remaining = delay
	} else {
		t.deadline = s.now.Add(delay)
	}
	s.timers[t.handle] = t
	return t.handle
}

// Cancel is a no-op for unknown, fired or already cancelled handles.
func (s *Scheduler) Cancel(h Handle) {
	delete(s.timers, h)
}

func (s *Scheduler) CancelAll() {
	clear(s.timers)
}

// Remaining reports how long until h fires, frozen while paused.
func (s *Scheduler) Remaining(h Handle) (time.Duration, bool) {
	t, ok := s.timers[h]
	if !ok {
		return 0, false
	}
	if s.paused {
		return t.remaining, true
	}
	if d := t.deadline.Sub(s.now); d > 0 {
		return d, true
	}
	return 0, true
}

func (s *Scheduler) PauseAll() {
	if s.paused {
		return
	}
	s.paused = true
	for _, t := range s.timers {
		t.remaining = max(t.deadline.Sub(s.now), 0)
	}
}

func (s *Scheduler) ResumeAll() {
	if !s.paused {
		return
	}
	s.paused = false
	for _, t := range s.timers {
		t.deadline = s.now.Add(t.remaining)
		t.remaining = 0
	}
}

// Advance moves the clock to now and fires every due timer in deadline order.
// While a callback runs, Now reports that timer's deadline so chained timers
// keep exact spacing. Returns how many callbacks ran.
func (s *Scheduler) Advance(now time.Time) int {
	fired := 0
	for !s.paused {
		t := s.nextDue(now)
		if t == nil {
			break
		}
		if t.deadline.After(s.now) {
			s.now = t.deadline
		}
		if t.period > 0 {
			t.deadline = t.deadline.Add(t.period)
		} else {
			delete(s.timers, t.handle)
		}
		t.callback()
		fired++
	}
	if now.After(s.now) {
		s.now = now
	}
	return fired
}

func (s *Scheduler) nextDue(now time.Time) *timer {
	var next *timer
	for _, t := range s.timers {
		if t.deadline.After(now) {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.handle < next.handle) {
			next = t
		}
	}
	return next
}
