package attendance

import (
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/tool"
)

// Session изменяемое состояние одной попытки прохода. Создаётся через NewSession при переходе
// в ожидание лица и заменяется новой после показа результата. Не потокобезопасна: все
// обращения выполняются в задачах scheduler.Loop
type Session struct {
	// Время первого появления лица
	faceSeenAt time.Time

	// Время распознавания в секундах. Фиксируется при первом вызове распознавателя
	recognitionStamped bool
	recognition        float64

	// Начало и длительность замера температуры
	gaugeStart time.Time
	gauge      float64

	readings []model.TemperatureReading
	average  *float64

	retries   int
	finalized bool
}

// NewSession конструктор пустой Session
func NewSession() *Session {
	return &Session{}
}

// FaceSeen фиксирует время первого появления лица. Повторные вызовы не меняют значения
func (m *Session) FaceSeen(at time.Time) {
	if m.faceSeenAt.IsZero() {
		m.faceSeenAt = at
	}
}

// AddReading добавляет замер температуры. На первом замере фиксируется начало замера
func (m *Session) AddReading(reading model.TemperatureReading) {
	if m.finalized {
		return
	}
	if len(m.readings) == 0 && m.gaugeStart.IsZero() {
		m.gaugeStart = reading.CreateAt
	}
	m.readings = append(m.readings, reading)
}

// Readings колличество замеров
func (m *Session) Readings() int {
	return len(m.readings)
}

// AverageOnFirstAccess средняя температура, округлённая до сотых. При первом вызове вычисляется
// и запоминается вместе с длительностью замера (от первого замера до at), последующие вызовы
// возвращают запомненное значение. Без замеров возвращает false и ничего не запоминает
func (m *Session) AverageOnFirstAccess(at time.Time) (float64, bool) {
	if m.average != nil {
		return *m.average, true
	}
	if len(m.readings) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range m.readings {
		sum += v.Value
	}
	average := tool.Round(sum/float64(len(m.readings)), 2)
	m.average = &average
	m.gauge = at.Sub(m.gaugeStart).Seconds()
	return average, true
}

// GaugeDuration длительность замера температуры в секундах. До вызова AverageOnFirstAccess
// равна нулю
func (m *Session) GaugeDuration() float64 {
	return m.gauge
}

// StartRecognition фиксирует время распознавания (от первого появления лица до at) при
// первом вызове распознавателя в сессии
func (m *Session) StartRecognition(at time.Time) {
	if m.recognitionStamped {
		return
	}
	m.recognitionStamped = true
	if !m.faceSeenAt.IsZero() {
		m.recognition = at.Sub(m.faceSeenAt).Seconds()
	}
}

// RecognitionStarted распознаватель уже вызывался в этой сессии
func (m *Session) RecognitionStarted() bool {
	return m.recognitionStamped
}

// RecognitionDuration время распознавания в секундах
func (m *Session) RecognitionDuration() float64 {
	return m.recognition
}

// IncRetries увеличивает счётчик вызовов распознавателя и возвращает новое значение
func (m *Session) IncRetries() int {
	if !m.finalized {
		m.retries++
	}
	return m.retries
}

// Retries колличество вызовов распознавателя
func (m *Session) Retries() int {
	return m.retries
}

// Finalize отмечает, что попытка завершена. После этого сессия только читается
func (m *Session) Finalize() {
	m.finalized = true
}

// Finalized попытка завершена
func (m *Session) Finalized() bool {
	return m.finalized
}
