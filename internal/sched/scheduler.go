// Package sched is a virtual-time scheduler. Entries are kept in a heap
// ordered by fire time and fired by RunDue, either from tests that advance a
// fake clock or from the Run driver on a real one.
package sched

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Func is called with the time the entry was scheduled to fire, which may be
// earlier than the clock's current time when the driver runs late.
type Func func(at time.Time)

// Scheduler holds one-shot and periodic entries against a clock.
type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries entryHeap
	seq     uint64
	wake    chan struct{}
}

// Timer is a handle on a scheduled entry.
type Timer struct {
	s *Scheduler
	e *entry
}

type entry struct {
	fireAt  time.Time
	seq     uint64
	every   time.Duration
	fn      Func
	index   int
	stopped bool
}

// New creates a scheduler on the given clock. A nil clock means the real one.
func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock: clock,
		wake:  make(chan struct{}, 1),
	}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// After schedules fn to run once, d from now.
func (s *Scheduler) After(d time.Duration, fn Func) *Timer {
	return s.push(d, 0, fn)
}

// Every schedules fn to run every d, starting d from now.
func (s *Scheduler) Every(d time.Duration, fn Func) *Timer {
	if d <= 0 {
		panic("sched: non-positive interval")
	}
	return s.push(d, d, fn)
}

func (s *Scheduler) push(d, every time.Duration, fn Func) *Timer {
	s.mu.Lock()
	s.seq++
	e := &entry{
		fireAt: s.clock.Now().Add(d),
		seq:    s.seq,
		every:  every,
		fn:     fn,
	}
	heap.Push(&s.entries, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return &Timer{s: s, e: e}
}

// Stop cancels the entry. It is safe to call more than once and after the
// entry has fired. Once Stop returns the entry's function will not be called
// again, unless it is already running.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.e.stopped {
		return
	}
	t.e.stopped = true
	if t.e.index >= 0 {
		heap.Remove(&t.s.entries, t.e.index)
	}
}

// Pending returns the number of live entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// RunDue fires every entry whose fire time is not after the clock's current
// time, in fire-time order, and returns how many ran. Entries scheduled by a
// callback for a time that is already due run in the same call.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()
	fired := 0
	for {
		s.mu.Lock()
		if s.entries.Len() == 0 || s.entries[0].fireAt.After(now) {
			s.mu.Unlock()
			return fired
		}
		e := s.entries[0]
		at := e.fireAt
		if e.every > 0 {
			e.fireAt = e.fireAt.Add(e.every)
			s.seq++
			e.seq = s.seq
			heap.Fix(&s.entries, 0)
		} else {
			heap.Pop(&s.entries)
			e.stopped = true
		}
		fn := e.fn
		s.mu.Unlock()

		fn(at)
		fired++
	}
}

// next returns the fire time of the earliest entry.
func (s *Scheduler) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries.Len() == 0 {
		return time.Time{}, false
	}
	return s.entries[0].fireAt, true
}

// Run drives the scheduler on its clock until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.RunDue()

		var timeout <-chan time.Time
		var timer clockwork.Timer
		if at, ok := s.next(); ok {
			timer = s.clock.NewTimer(at.Sub(s.clock.Now()))
			timeout = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-s.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// entryHeap implements heap.Interface ordered by (fireAt, seq).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
