package schedule

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of wall time. Tasks run on
// the goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks map[int]*manualTask
}

type manualTask struct {
	id       int
	interval time.Duration
	next     time.Duration
	fn       func()
}

func NewManual() *Manual {
	return &Manual{tasks: make(map[int]*manualTask)}
}

func (m *Manual) Every(interval time.Duration, fn func()) func() {
	if interval <= 0 {
		panic("schedule: non-positive interval")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := m.seq
	m.tasks[id] = &manualTask{id: id, interval: interval, next: m.now + interval, fn: fn}
	return func() {
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
	}
}

// Active returns the number of tasks that have not been stopped.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, firing every due task in time order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.nextDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = t.next
		t.next += t.interval
		fn := t.fn
		m.mu.Unlock()
		fn()
	}
}

func (m *Manual) nextDue(target time.Duration) *manualTask {
	due := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.next <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next == due[j].next {
			return due[i].id < due[j].id
		}
		return due[i].next < due[j].next
	})
	return due[0]
}
