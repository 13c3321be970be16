package web

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/tool"
	"github.com/kirsrus/facegate/store"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"
)

const (
	webPort   = 8080
	assetsDir = "./assets"
	// Каждые 10 секунд подавать в канал ping, иначе клиент его закроет
	keepAlivePingInterval = 10 * time.Second
	subscriberQueue       = 16
	shutdownTimeout       = 5 * time.Second
	frameQuality          = 80
	dateLayout            = "2006-01-02"
	timeLayout            = "2006.01.02 15:04:05"
)

// StateSource источник текущего состояния терминала
type StateSource interface {
	Snapshot() model.Snapshot
}

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	WebPort   uint
	AssetsDir string
}

// Web киоск терминала и API. Инициализируется через NewWeb
type Web struct {
	ctx      context.Context
	log      *logrus.Entry
	e        *echo.Echo
	upgrader websocket.Upgrader

	events store.EventStore
	faces  store.FaceStore

	subscribers *sync.Map

	mu      sync.RWMutex
	state   StateSource
	frame   *model.Frame
	caption string
	name    string
	clock   time.Time
	last    *model.OutcomeNotice

	webPort   uint
	assetsDir string
}

// NewWeb конструктор структуры Web
func NewWeb(ctx context.Context, events store.EventStore, faces store.FaceStore, config *ConfigWeb) (*Web, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if events == nil {
		return nil, errors.New("не передан журнал событий")
	}
	if faces == nil {
		return nil, errors.New("не передано хранилище лиц")
	}
	web := Web{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "web",
			"scope":  "service",
		}),
		e: echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		events:      events,
		faces:       faces,
		subscribers: new(sync.Map),
		webPort:     webPort,
		assetsDir:   assetsDir,
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}
	if config.AssetsDir != "" {
		web.assetsDir = config.AssetsDir
	}

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	web.e.GET("/api/state", web.handleState)
	web.e.GET("/api/events", web.handleEvents)
	web.e.GET("/api/live", web.handleLive)
	web.e.GET("/api/frame", web.handleFrame)
	web.e.GET("/person/:id", web.handlePerson)
	web.e.Static("/", web.assetsDir)

	return &web, nil
}

// Attach подключает источник состояния терминала
func (m *Web) Attach(source StateSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = source
}

// Handler обработчик HTTP-запросов
func (m *Web) Handler() http.Handler {
	return m.e
}

// Serve запускает HTTP-сервер и останавливает его при отмене ctx
func (m *Web) Serve(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		m.log.Infof("старт HTTP-сервера на порту :%d", m.webPort)
		errChan <- m.e.Start(fmt.Sprintf(":%d", m.webPort))
	}()
	select {
	case err := <-errChan:
		return errors.Annotate(err, "сервер неожиданно завершил работу")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.e.Shutdown(shutdownCtx); err != nil {
			m.log.Warnf("ошибка остановки HTTP-сервера: %v", err)
		}
		if err := <-errChan; err != nil && err != http.ErrServerClosed {
			return errors.Trace(err)
		}
		return nil
	}
}

// Caption подсказка над изображением
func (m *Web) Caption(text string) {
	m.mu.Lock()
	m.caption = text
	m.mu.Unlock()
	m.broadcast(Message{Kind: KindCaption, Text: text})
}

// Name имя опознанной личности
func (m *Web) Name(text string) {
	m.mu.Lock()
	m.name = text
	m.mu.Unlock()
	m.broadcast(Message{Kind: KindName, Text: text})
}

// Clock текущее время
func (m *Web) Clock(t time.Time) {
	m.mu.Lock()
	m.clock = t
	m.mu.Unlock()
	m.broadcast(Message{Kind: KindClock, Text: t.Format(timeLayout)})
}

// Frame текущий кадр. Кадры не рассылаются, а отдаются по запросу /api/frame
func (m *Web) Frame(frame *model.Frame) {
	m.mu.Lock()
	m.frame = frame
	m.mu.Unlock()
}

// Outcome результат попытки прохода
func (m *Web) Outcome(notice model.OutcomeNotice) {
	m.mu.Lock()
	m.last = &notice
	m.mu.Unlock()
	m.broadcast(Message{Kind: KindOutcome, Outcome: newOutcomeView(&notice)})
}

// Subscribers колличество подключенных клиентов живой ленты
func (m *Web) Subscribers() int {
	count := 0
	m.subscribers.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (m *Web) broadcast(msg Message) {
	m.subscribers.Range(func(key, value interface{}) bool {
		inChan, ok := value.(chan Message)
		if !ok {
			m.log.Errorf("в пуле подписчиков неожиданный тип данных: %T", value)
			return true
		}
		select {
		case inChan <- msg:
		default:
			m.log.Warnf("канал подписчика %s переполнен", key)
		}
		return true
	})
}

func (m *Web) current() Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg := Message{Kind: KindState, State: &StateView{
		Caption: m.caption,
		Name:    m.name,
		Last:    newOutcomeView(m.last),
	}}
	if !m.clock.IsZero() {
		msg.Text = m.clock.Format(timeLayout)
	}
	if m.state != nil {
		snapshot := m.state.Snapshot()
		msg.State.State = snapshot.State.String()
		msg.State.Retries = snapshot.Retries
		msg.State.Readings = snapshot.Readings
	}
	return msg
}

func (m *Web) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, m.current().State)
}

func (m *Web) handleEvents(c echo.Context) error {
	from := tool.RoundToDate(time.Now())
	to := from.AddDate(0, 0, 1)
	if value := c.QueryParam("from"); value != "" {
		t, err := time.ParseInLocation(dateLayout, value, time.Local)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("некорректная дата from: %s", value)})
		}
		from = t
		to = from.AddDate(0, 0, 1)
	}
	if value := c.QueryParam("to"); value != "" {
		t, err := time.ParseInLocation(dateLayout, value, time.Local)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("некорректная дата to: %s", value)})
		}
		to = t.AddDate(0, 0, 1)
	}
	records, err := m.events.Events(from, to)
	if err != nil {
		m.log.Errorf("ошибка чтения журнала событий: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "ошибка: " + err.Error()})
	}
	result := make([]EventView, 0, len(records))
	for _, record := range records {
		result = append(result, newEventView(record))
	}
	return c.JSON(http.StatusOK, result)
}

func (m *Web) handleFrame(c echo.Context) error {
	m.mu.RLock()
	frame := m.frame
	m.mu.RUnlock()
	if frame == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "кадр ещё не получен"})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image(), &jpeg.Options{Quality: frameQuality}); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "ошибка: " + err.Error()})
	}
	return c.Blob(http.StatusOK, "image/jpeg", buf.Bytes())
}

func (m *Web) handlePerson(c echo.Context) error {
	name := c.Param("id")
	id, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("некорректный идентификатор личности: %s", name)})
	}
	content, err := m.faces.LatestFace(uint(id))
	if err != nil {
		if errors.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "ошибка: " + err.Error()})
	}
	mime := mimetype.Detect(content).String()
	return c.Blob(http.StatusOK, mime, content)
}
