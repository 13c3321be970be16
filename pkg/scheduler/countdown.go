package scheduler

import (
	"fmt"
	"time"
)

// Countdown посекундный обратный отсчёт подписи "следующий снимок через N". Все шаги
// выполняются в задачах Loop
type Countdown struct {
	loop   *Loop
	show   func(text string)
	format string

	value int
	job   *Job
}

// NewCountdown конструктор Countdown. show получает текст подписи, пустая строка скрывает её.
// format содержит один %d
func NewCountdown(loop *Loop, format string, show func(text string)) *Countdown {
	return &Countdown{
		loop:   loop,
		show:   show,
		format: format,
	}
}

// Start начинает отсчёт с from. Подпись показывает from, from-1, ..., 2 с шагом в секунду,
// после чего скрывается, и отсчёт завершается
func (m *Countdown) Start(from int) {
	m.job.Cancel()
	m.value = from
	m.tick()
}

func (m *Countdown) tick() {
	if m.value <= 1 {
		m.show("")
		m.value = 0
		m.job = nil
		return
	}
	m.show(fmt.Sprintf(m.format, m.value))
	m.value--
	m.job = m.loop.After(time.Second, m.tick)
}

// Active отсчёт ещё идёт
func (m *Countdown) Active() bool {
	return m.value > 0
}

// Value текущее значение отсчёта
func (m *Countdown) Value() int {
	return m.value
}

// Cancel прерывает отсчёт без изменения подписи
func (m *Countdown) Cancel() {
	m.job.Cancel()
	m.job = nil
	m.value = 0
}
