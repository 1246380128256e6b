// Package schedule provides the cancellable delayed tasks used by the
// campaign components and a manual clock for driving them in tests.
package schedule

import (
	"sync"
	"time"
)

// Task is a pending delayed callback. Stop reports whether it prevented the
// callback from running.
type Task interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Task
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// Periodic runs fn every interval. The next run is armed only after the
// previous one returns, so runs never overlap.
type Periodic struct {
	clock    Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	task    Task
	stopped bool
}

func Every(c Clock, interval time.Duration, fn func()) *Periodic {
	p := &Periodic{clock: c, interval: interval, fn: fn}
	p.arm()
	return p
}

func (p *Periodic) arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.task = p.clock.AfterFunc(p.interval, p.run)
}

func (p *Periodic) run() {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	p.fn()
	p.arm()
}

// Stop cancels the pending run. A run already in progress finishes but is
// not rescheduled.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.task != nil {
		p.task.Stop()
	}
}
