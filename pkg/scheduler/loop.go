package scheduler

import (
	"context"
	"sync"
	"time"
)

// Loop однопоточная очередь задач. Все задачи, переданные через Post и After, выполняются
// по одной в горутине Run (или в Drain), поэтому не требуют дополнительной синхронизации
// между собой. Инициализируется через NewLoop
type Loop struct {
	clock Clock

	mu      sync.Mutex
	queue   []func()
	notify  chan struct{}
	stopped bool
}

// NewLoop конструктор Loop. При clock == nil используются системные часы
func NewLoop(clock Clock) *Loop {
	if clock == nil {
		clock = RealClock()
	}
	return &Loop{
		clock:  clock,
		notify: make(chan struct{}, 1),
	}
}

// Clock часы, по которым планируются задачи
func (m *Loop) Clock() Clock {
	return m.clock
}

// Post ставит задачу в очередь. Возвращает false, если очередь остановлена
func (m *Loop) Post(task func()) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, task)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// After ставит задачу в очередь по истечении d. Задача не выполнится, если до этого
// будет вызван Job.Cancel
func (m *Loop) After(d time.Duration, task func()) *Job {
	job := &Job{}
	timer := m.clock.AfterFunc(d, func() {
		m.Post(func() {
			if !job.start() {
				return
			}
			task()
		})
	})
	job.setTimer(timer)
	return job
}

// Run выполняет задачи до отмены ctx или вызова Stop
func (m *Loop) Run(ctx context.Context) error {
	for {
		m.Drain()
		if m.isStopped() {
			return nil
		}
		select {
		case <-ctx.Done():
			m.Stop()
			return ctx.Err()
		case <-m.notify:
		}
	}
}

// Drain синхронно выполняет все задачи очереди, включая поставленные в процессе.
// Возвращает колличество выполненных задач
func (m *Loop) Drain() int {
	count := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return count
		}
		task := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		task()
		count++
	}
}

// Stop останавливает очередь. Невыполненные задачи отбрасываются
func (m *Loop) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Loop) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Job отложенная задача Loop
type Job struct {
	mu       sync.Mutex
	timer    Timer
	canceled bool
	started  bool
}

func (j *Job) setTimer(timer Timer) {
	j.mu.Lock()
	j.timer = timer
	j.mu.Unlock()
}

// Отмечает начало выполнения. Возвращает false для отменённой задачи
func (j *Job) start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.canceled {
		return false
	}
	j.started = true
	return true
}

// Cancel отменяет задачу, если она ещё не начала выполняться. Безопасен для nil
func (j *Job) Cancel() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.canceled = true
	if j.timer != nil {
		j.timer.Stop()
	}
}

// Canceled задача отменена
func (j *Job) Canceled() bool {
	if j == nil {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.canceled
}
