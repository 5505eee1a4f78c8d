// Package clock schedules delayed callbacks (toast expiry, login redirects)
// behind an interface so tests can drive time by hand.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It reports false when the callback already
	// ran or was stopped before.
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real schedules on the runtime timer and keeps track of callbacks that have
// not run yet, so a short-lived process can wait for them before exiting.
type Real struct {
	wg sync.WaitGroup
}

func NewReal() *Real {
	return &Real{}
}

func (r *Real) Now() time.Time {
	return time.Now()
}

func (r *Real) AfterFunc(d time.Duration, f func()) Timer {
	r.wg.Add(1)
	t := time.AfterFunc(d, func() {
		defer r.wg.Done()
		f()
	})
	return &realTimer{t: t, wg: &r.wg}
}

// Wait blocks until every scheduled callback has run or been stopped.
func (r *Real) Wait() {
	r.wg.Wait()
}

type realTimer struct {
	t    *time.Timer
	wg   *sync.WaitGroup
	once sync.Once
}

func (rt *realTimer) Stop() bool {
	if !rt.t.Stop() {
		return false
	}
	stopped := false
	rt.once.Do(func() {
		rt.wg.Done()
		stopped = true
	})
	return stopped
}

// Manual is a Scheduler whose time only moves when Advance is called.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*manualTimer
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, f: f}
	m.pending = append(m.pending, t)
	return t
}

// Advance moves time forward by d and runs every callback that became due,
// earliest first. Callbacks run without the lock held.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due, rest []*manualTimer
	for _, t := range m.pending {
		if !t.at.After(m.now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	m.pending = rest
	m.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.f()
	}
}

// Pending returns how many callbacks are still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

type manualTimer struct {
	m   *Manual
	at  time.Time
	seq int
	f   func()
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, p := range t.m.pending {
		if p == t {
			t.m.pending = append(t.m.pending[:i], t.m.pending[i+1:]...)
			return true
		}
	}
	return false
}
