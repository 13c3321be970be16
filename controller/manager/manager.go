package manager

import (
	"context"
	"time"

	"github.com/kirsrus/facegate/controller"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/scheduler"
	"github.com/kirsrus/facegate/service"
	"github.com/kirsrus/facegate/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	clockInterval     = time.Second
	cleanBasePeriod   = time.Hour * 24 * 90
	cleanBaseInterval = time.Minute * 60
)

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log   *logrus.Logger
	Clock scheduler.Clock

	AttendanceCtl controller.AttendanceCtl

	DisplaySvc service.DisplaySvc
	// HTTP-сервер (может отсутствовать)
	WebSvc     service.WebSvc
	EventStore store.EventStore
	// Очередь повторной записи событий (может отсутствовать)
	Retry *Retry

	ClockInterval     time.Duration
	CleanBasePeriod   time.Duration
	CleanBaseInterval time.Duration
}

// Manager основной менеджер работы со всеми сервисами терминала. Инициируется через NewManager
type Manager struct {
	ctx   context.Context
	log   *logrus.Entry
	clock scheduler.Clock

	attendanceCtl controller.AttendanceCtl

	displaySvc service.DisplaySvc
	webSvc     service.WebSvc
	eventStore store.EventStore
	retry      *Retry

	clockInterval     time.Duration
	cleanBasePeriod   time.Duration
	cleanBaseInterval time.Duration
}

// NewManager конструктор Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.Clock == nil {
		config.Clock = scheduler.RealClock()
	}
	if config.AttendanceCtl == nil {
		return nil, errors.New("не передан контроллер контроля доступа")
	}
	if config.DisplaySvc == nil {
		return nil, errors.New("не передан сервис отображения")
	}
	if config.EventStore == nil {
		return nil, errors.New("не передан журнал событий")
	}

	manager := Manager{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		clock:         config.Clock,
		attendanceCtl: config.AttendanceCtl,
		displaySvc:    config.DisplaySvc,
		webSvc:        config.WebSvc,
		eventStore:    config.EventStore,
		retry:         config.Retry,

		clockInterval:     clockInterval,
		cleanBasePeriod:   cleanBasePeriod,
		cleanBaseInterval: cleanBaseInterval,
	}
	if config.ClockInterval != 0 {
		manager.clockInterval = config.ClockInterval
	}
	if config.CleanBasePeriod != 0 {
		manager.cleanBasePeriod = config.CleanBasePeriod
	}
	if config.CleanBaseInterval != 0 {
		manager.cleanBaseInterval = config.CleanBaseInterval
	}

	manager.configToLog()

	return &manager, nil
}

// Вывести значения конфигурациии в лог
func (m *Manager) configToLog() {
	m.log.Debugf("clockInterval: %s", m.clockInterval)
	m.log.Debugf("cleanBasePeriod: %s", m.cleanBasePeriod)
	m.log.Debugf("cleanBaseInterval: %s", m.cleanBaseInterval)
	m.log.Debugf("web: %v, retry: %v", m.webSvc != nil, m.retry != nil)
}

// Serve запускает контроллер и вспомогательные процессы. Завершается при отмене
// контекста или при ошибке любого из процессов
func (m *Manager) Serve() error {
	g, ctx := errgroup.WithContext(m.ctx)

	// Контроллер контроля доступа
	g.Go(func() error {
		err := m.attendanceCtl.Serve(ctx)
		if err != nil {
			return errors.Annotate(err, "контроллер контроля доступа")
		}
		if ctx.Err() == nil {
			return errors.New("контроллер контроля доступа неожиданно остановлен")
		}
		return nil
	})

	// Часы на экране терминала
	g.Go(func() error {
		ticker := time.NewTicker(m.clockInterval)
		defer ticker.Stop()
		m.displaySvc.Clock(m.clock.Now())
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.displaySvc.Clock(m.clock.Now())
			}
		}
	})

	// Хоускеппер для очистки журнала от старых записей
	g.Go(func() error {
		ticker := time.NewTicker(m.cleanBaseInterval)
		defer ticker.Stop()
		for {
			m.clean()
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if m.retry != nil {
		g.Go(func() error {
			return m.retry.Serve(ctx)
		})
	}

	if m.webSvc != nil {
		g.Go(func() error {
			return m.webSvc.Serve(ctx)
		})
	}

	err := g.Wait()
	if err != nil && m.ctx.Err() == nil {
		return errors.Trace(err)
	}
	return nil
}

func (m *Manager) clean() {
	before := m.clock.Now().Add(-m.cleanBasePeriod)
	count, err := m.eventStore.Clean(before)
	if err != nil {
		m.log.Errorf("ошибка очистки журнала событий: %v", err)
		return
	}
	if count > 0 {
		m.log.Infof("удалено %d событий старше %s", count, before.Format("2006.01.02 15:04:05"))
	}
}
