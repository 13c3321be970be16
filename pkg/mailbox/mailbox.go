package mailbox

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
)

// ErrTimeout значение не поступило за отведённое время
var ErrTimeout = errors.New("истекло время ожидания")

// ErrClosed ящик закрыт
var ErrClosed = errors.New("ящик закрыт")

// Mailbox ящик на одно значение: новое значение замещает непрочитанное. Один писатель
// и один читатель
type Mailbox[T any] struct {
	mu     sync.Mutex
	value  T
	full   bool
	drops  uint64
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// New конструктор Mailbox
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Publish кладёт значение, замещая непрочитанное. Не блокируется
func (m *Mailbox[T]) Publish(value T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.full {
		m.drops++
	}
	m.value = value
	m.full = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Take ждёт значение не дольше timeout (0 - без ограничения) или до отмены ctx
func (m *Mailbox[T]) Take(ctx context.Context, timeout time.Duration) (T, error) {
	var (
		zero  T
		timer <-chan time.Time
	)
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		m.mu.Lock()
		if m.full {
			value := m.value
			m.value = zero
			m.full = false
			m.mu.Unlock()
			return value, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-m.signal:
		case <-m.done:
		case <-timer:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, errors.Trace(ctx.Err())
		}
	}
}

// Drops колличество замещённых непрочитанных значений
func (m *Mailbox[T]) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Close закрывает ящик и будит ожидающего читателя
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}
