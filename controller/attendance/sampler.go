package attendance

import (
	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/scheduler"
	"github.com/kirsrus/facegate/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Калибровочная поправка к показаниям датчика
	calibrationOffset = 10.68
)

// Sampler сбор замеров температуры в сессию. Инициализируется через NewSampler
type Sampler struct {
	log    *logrus.Entry
	sensor service.TemperatureSensor
	clock  scheduler.Clock
	offset float64
}

// ConfigSampler конфигурация Sampler
type ConfigSampler struct {
	Log   *logrus.Logger
	Clock scheduler.Clock
	// Калибровочная поправка. По умолчанию 10.68
	Offset float64
}

// NewSampler конструктор Sampler
func NewSampler(sensor service.TemperatureSensor, config *ConfigSampler) (*Sampler, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if sensor == nil {
		return nil, errors.New("не передан датчик температуры")
	}
	sampler := Sampler{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "sampler",
			"scope":  "controller",
		}),
		sensor: sensor,
		clock:  config.Clock,
		offset: calibrationOffset,
	}
	if sampler.clock == nil {
		sampler.clock = scheduler.RealClock()
	}
	if config.Offset != 0 {
		sampler.offset = config.Offset
	}
	return &sampler, nil
}

// Sample добавляет в сессию один замер, если на кадре найдены глаза. Ошибка чтения датчика
// пропускает замер этого кадра. Возвращает true, если замер добавлен
func (m *Sampler) Sample(session *Session, result model.DetectionResult) bool {
	if session == nil || !result.EyeFound || session.Finalized() {
		return false
	}
	raw, err := m.sensor.Read()
	if err != nil {
		m.log.Warnf("замер пропущен, ошибка чтения датчика: %v", err)
		return false
	}
	reading := model.TemperatureReading{
		CreateAt: m.clock.Now(),
		Value:    raw + m.offset,
	}
	session.AddReading(reading)
	m.log.Debugf("замер %.2f (%d в сессии)", reading.Value, session.Readings())
	return true
}
