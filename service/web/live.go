package web

import (
	"time"

	"github.com/kirsrus/facegate/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
)

// Виды сообщений живой ленты
const (
	KindState   = "state"
	KindCaption = "caption"
	KindName    = "name"
	KindClock   = "clock"
	KindOutcome = "outcome"
)

// Message сообщение живой ленты киоска
type Message struct {
	Kind    string       `json:"kind"`
	Text    string       `json:"text,omitempty"`
	State   *StateView   `json:"state,omitempty"`
	Outcome *OutcomeView `json:"outcome,omitempty"`
}

// StateView состояние терминала для киоска
type StateView struct {
	State    string       `json:"state,omitempty"`
	Retries  int          `json:"retries"`
	Readings int          `json:"readings"`
	Caption  string       `json:"caption"`
	Name     string       `json:"name"`
	Last     *OutcomeView `json:"last,omitempty"`
}

// OutcomeView результат попытки прохода
type OutcomeView struct {
	CreateAt    string   `json:"createAt"`
	Outcome     string   `json:"outcome"`
	Name        string   `json:"name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Saved       bool     `json:"saved"`
}

// EventView запись журнала событий
type EventView struct {
	UID         string   `json:"uid"`
	CreateAt    string   `json:"createAt"`
	IdentityID  *uint    `json:"identityId,omitempty"`
	Name        string   `json:"name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Detect      *float64 `json:"detect,omitempty"`
	Gauge       *float64 `json:"gauge,omitempty"`
	Mask        bool     `json:"mask"`
}

func newOutcomeView(notice *model.OutcomeNotice) *OutcomeView {
	if notice == nil {
		return nil
	}
	return &OutcomeView{
		CreateAt:    notice.CreateAt.Format(timeLayout),
		Outcome:     notice.Outcome.String(),
		Name:        notice.Name,
		Temperature: notice.Temperature,
		Saved:       notice.Saved,
	}
}

func newEventView(record model.EventRecord) EventView {
	view := EventView{
		UID:         record.UID,
		CreateAt:    record.CreateAt.Format(timeLayout),
		IdentityID:  record.IdentityID,
		Temperature: record.Temperature,
		Detect:      record.RecognitionDuration,
		Gauge:       record.GaugeDuration,
		Mask:        record.Mask,
	}
	if record.Identity != nil {
		view.Name = record.Identity.Name
	}
	return view
}

// handleLive живая лента: текущее состояние при подключении, затем изменения
func (m *Web) handleLive(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		m.log.Warnf("ошибка подключения к живой ленте: %v", err)
		return nil
	}
	defer conn.Close()

	id := uuid.New().String()
	inChan := make(chan Message, subscriberQueue)
	m.subscribers.Store(id, inChan)
	defer m.subscribers.Delete(id)
	m.log.Debugf("подключен клиент живой ленты %s", id)

	// Клиент ничего не присылает, чтение нужно только для обнаружения разрыва
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(m.current()); err != nil {
		return nil
	}

	ping := time.NewTicker(keepAlivePingInterval)
	defer ping.Stop()
	for {
		select {
		case <-m.ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-closed:
			m.log.Debugf("клиент живой ленты %s отключился", id)
			return nil
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case msg := <-inChan:
			if err := conn.WriteJSON(msg); err != nil {
				m.log.Debugf("ошибка отправки клиенту %s: %v", id, err)
				return nil
			}
		}
	}
}
