package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a Clock whose time only moves when Advance is called. Scheduled
// callbacks fire synchronously, in due order, on the advancing goroutine.
type Mock struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*mockTask
}

type mockTask struct {
	clock    *Mock
	due      time.Time
	period   time.Duration // zero for one-shot timers
	fn       func()
	seq      int
	stopped  bool
}

// NewMock returns a Mock starting at a fixed, arbitrary instant.
func NewMock() *Mock {
	return &Mock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, fn func()) Stopper {
	return m.schedule(d, 0, fn)
}

func (m *Mock) Interval(d time.Duration, fn func()) Stopper {
	return m.schedule(d, d, fn)
}

func (m *Mock) schedule(d, period time.Duration, fn func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &mockTask{clock: m, due: m.now.Add(d), period: period, fn: fn, seq: m.seq}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *mockTask) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

// Advance moves time forward by d, firing every due callback in order.
// Callbacks may schedule further work; anything that becomes due within the
// same advance window fires too.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		task := m.nextDue(target)
		if task == nil {
			break
		}

		m.mu.Lock()
		if task.due.After(m.now) {
			m.now = task.due
		}
		fn := task.fn
		if task.period > 0 {
			task.due = task.due.Add(task.period)
		}
		m.mu.Unlock()

		fn()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// nextDue returns the earliest unstopped task due at or before target,
// pruning stopped and exhausted one-shot tasks.
func (m *Mock) nextDue(target time.Time) *mockTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.tasks = live

	sort.SliceStable(m.tasks, func(i, j int) bool {
		if !m.tasks[i].due.Equal(m.tasks[j].due) {
			return m.tasks[i].due.Before(m.tasks[j].due)
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})

	for i, t := range m.tasks {
		if t.due.After(target) {
			continue
		}
		if t.period == 0 {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
		}
		return t
	}
	return nil
}

// PendingCount reports how many unstopped tasks are scheduled. Useful for
// asserting that no timers leak across navigation.
func (m *Mock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}
