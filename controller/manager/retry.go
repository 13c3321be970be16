package manager

import (
	"context"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	retryQueue           = 64
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 10 * time.Minute
)

// Retry очередь повторной записи событий, которые не удалось сохранить сразу.
// Инициализируется через NewRetry
type Retry struct {
	log    *logrus.Entry
	events store.EventStore
	queue  chan model.EventRecord

	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsedTime  time.Duration
}

// ConfigRetry конфигурация Retry
type ConfigRetry struct {
	Log *logrus.Logger

	// Размер очереди
	Queue int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Время, после которого попытки записи события прекращаются
	MaxElapsedTime time.Duration
}

// NewRetry конструктор Retry
func NewRetry(events store.EventStore, config *ConfigRetry) (*Retry, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if events == nil {
		return nil, errors.New("не передан журнал событий")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	queue := retryQueue
	if config.Queue > 0 {
		queue = config.Queue
	}
	r := Retry{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "retry",
			"scope":  "controller",
		}),
		events:          events,
		queue:           make(chan model.EventRecord, queue),
		initialInterval: retryInitialInterval,
		maxInterval:     retryMaxInterval,
		maxElapsedTime:  retryMaxElapsedTime,
	}
	if config.InitialInterval != 0 {
		r.initialInterval = config.InitialInterval
	}
	if config.MaxInterval != 0 {
		r.maxInterval = config.MaxInterval
	}
	if config.MaxElapsedTime != 0 {
		r.maxElapsedTime = config.MaxElapsedTime
	}
	return &r, nil
}

// Push ставит событие в очередь. Не блокируется: при переполненной очереди событие теряется
func (m *Retry) Push(record model.EventRecord) bool {
	select {
	case m.queue <- record:
		m.log.Warnf("событие %s поставлено в очередь повторной записи", record.UID)
		return true
	default:
		m.log.Errorf("очередь повторной записи переполнена, событие %s потеряно", record.UID)
		return false
	}
}

// Pending колличество событий в очереди
func (m *Retry) Pending() int {
	return len(m.queue)
}

// Serve записывает события из очереди до отмены ctx
func (m *Retry) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if pending := len(m.queue); pending > 0 {
				m.log.Errorf("при остановке не записано %d событий", pending)
			}
			return nil
		case record := <-m.queue:
			if err := m.store(ctx, record); err != nil {
				m.log.Errorf("событие %s не записано: %v", record.UID, err)
			}
		}
	}
}

func (m *Retry) store(ctx context.Context, record model.EventRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialInterval
	b.MaxInterval = m.maxInterval
	b.MaxElapsedTime = m.maxElapsedTime

	attempt := 0
	operation := func() error {
		attempt++
		return m.events.Append(record)
	}
	notify := func(err error, wait time.Duration) {
		m.log.Warnf("попытка %d записи события %s: %v, повтор через %s", attempt, record.UID, err, wait)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return errors.Trace(err)
	}
	m.log.Infof("событие %s записано с попытки %d", record.UID, attempt)
	return nil
}
