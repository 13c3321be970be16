package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Clock источник времени и отложенных вызовов
type Clock interface {
	Now() time.Time
	// AfterFunc вызывает f в собственной горутине по истечении d
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer отменяемый отложенный вызов
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock системные часы
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualClock часы, время которых двигается вручную через Advance. Отложенные вызовы
// выполняются синхронно внутри Advance
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Time
	f        func()
	stopped  bool
}

// NewManualClock конструктор ManualClock
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now текущее время часов
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc регистрирует вызов f через d от текущего времени часов
func (m *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{clock: m, deadline: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance сдвигает время на d, по порядку вызывая все наступившие отложенные вызовы
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool { return m.timers[i].deadline.Before(m.timers[j].deadline) })
		var next *manualTimer
		for idx, t := range m.timers {
			if t.stopped {
				continue
			}
			if t.deadline.After(target) {
				break
			}
			next = t
			m.timers = append(m.timers[:idx:idx], m.timers[idx+1:]...)
			break
		}
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		m.mu.Unlock()
		next.f()
	}
}

// Pending колличество ожидающих вызовов
func (m *ManualClock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.timers {
		if !t.stopped {
			count++
		}
	}
	return count
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for idx, v := range t.clock.timers {
		if v == t {
			t.clock.timers = append(t.clock.timers[:idx:idx], t.clock.timers[idx+1:]...)
			return true
		}
	}
	return false
}
