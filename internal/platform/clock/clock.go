// Package clock abstracts timer and interval scheduling so that the
// animation, highlight, keyboard-repeat, and debounce bookkeeping in the
// viewer and search state machines can run against virtual time in tests.
package clock

import (
	"sync"
	"time"
)

// Stopper cancels a pending timer or a running interval. Stopping an
// already-stopped task is a no-op.
type Stopper interface {
	Stop()
}

// Clock schedules work against real or virtual time.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn once after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Stopper
	// Interval runs fn repeatedly every d until stopped.
	Interval(d time.Duration, fn func()) Stopper
}

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Stopper {
	return &systemTimer{t: time.AfterFunc(d, fn)}
}

func (systemClock) Interval(d time.Duration, fn func()) Stopper {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return &systemInterval{ticker: ticker, done: done}
}

type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) Stop() { s.t.Stop() }

type systemInterval struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (s *systemInterval) Stop() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
}
