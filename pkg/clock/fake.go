package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is a virtual-time Scheduler. Time moves only by Advance, and every
// callback that becomes due is executed synchronously by Advance, in the
// order of its due time (ties are resolved in the order of scheduling).
type Fake struct {
	locker  sync.Mutex
	now     time.Time
	nextSeq uint64
	events  []*fakeEvent
}

var _ Scheduler = (*Fake)(nil)

type fakeEvent struct {
	seq       uint64
	due       time.Time
	interval  time.Duration
	fn        func()
	cancelled bool
}

func NewFake(now time.Time) *Fake {
	return &Fake{
		now: now,
	}
}

func (f *Fake) Now() time.Time {
	f.locker.Lock()
	defer f.locker.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration, fn func()) CancelFunc {
	return f.schedule(d, 0, fn)
}

func (f *Fake) Every(interval time.Duration, fn func()) CancelFunc {
	if interval <= 0 {
		panic("clock: non-positive interval")
	}
	return f.schedule(interval, interval, fn)
}

func (f *Fake) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := f.After(d, func() {
		cancel(context.DeadlineExceeded)
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

func (f *Fake) schedule(d, interval time.Duration, fn func()) CancelFunc {
	f.locker.Lock()
	defer f.locker.Unlock()
	ev := &fakeEvent{
		seq:      f.nextSeq,
		due:      f.now.Add(d),
		interval: interval,
		fn:       fn,
	}
	f.nextSeq++
	f.events = append(f.events, ev)
	return func() {
		f.locker.Lock()
		defer f.locker.Unlock()
		ev.cancelled = true
	}
}

// Pending returns the amount of scheduled (not cancelled) callbacks.
func (f *Fake) Pending() int {
	f.locker.Lock()
	defer f.locker.Unlock()
	count := 0
	for _, ev := range f.events {
		if !ev.cancelled {
			count++
		}
	}
	return count
}

// Advance moves the virtual time forward by d, running every callback that
// becomes due, including the ones scheduled by callbacks during the advance.
func (f *Fake) Advance(d time.Duration) {
	f.locker.Lock()
	target := f.now.Add(d)
	f.locker.Unlock()

	for {
		ev := f.popDue(target)
		if ev == nil {
			break
		}
		ev.fn()
	}

	f.locker.Lock()
	f.now = target
	f.locker.Unlock()
}

func (f *Fake) popDue(target time.Time) *fakeEvent {
	f.locker.Lock()
	defer f.locker.Unlock()

	alive := f.events[:0]
	for _, ev := range f.events {
		if !ev.cancelled {
			alive = append(alive, ev)
		}
	}
	f.events = alive
	if len(f.events) == 0 {
		return nil
	}

	sort.SliceStable(f.events, func(i, j int) bool {
		if f.events[i].due.Equal(f.events[j].due) {
			return f.events[i].seq < f.events[j].seq
		}
		return f.events[i].due.Before(f.events[j].due)
	})
	ev := f.events[0]
	if ev.due.After(target) {
		return nil
	}
	f.now = ev.due

	if ev.interval > 0 {
		ev.due = ev.due.Add(ev.interval)
		ev.seq = f.nextSeq
		f.nextSeq++
		return ev
	}

	f.events = f.events[1:]
	return ev
}
