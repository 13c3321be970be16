package attendance

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/scheduler"
	"github.com/kirsrus/facegate/pkg/tool"
	"github.com/kirsrus/facegate/service"
	"github.com/kirsrus/facegate/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	pollInterval       = 125 * time.Millisecond
	denialWindow       = 1000 * time.Millisecond
	acceptWindow       = 1500 * time.Millisecond
	warmup             = 15
	maxRetries         = 10
	highTemperature    = 38.0
	durationBias       = 8.0
	countdownMask      = 5
	countdownAccept    = 5
	countdownExhausted = 3

	// Подписи для субъекта у терминала
	CaptionAlign     = "Расположите глаза\nв рамке"
	CaptionCountdown = "Следующий снимок через\n%d"
)

// Detector поиск лица, глаз и носа на кадре
type Detector interface {
	Detect(frame *model.Frame) model.DetectionResult
}

// Controller автомат контроля доступа. Опрашивает камеру, по результатам детекции собирает
// замеры температуры, распознаёт личность и фиксирует один из трёх итогов попытки: маска,
// проход, отказ. Инициализируется через NewController
type Controller struct {
	ctx context.Context
	// Контекст чтения кадров: отменяется вместе с ctx конструктора или ctx Serve
	readCtx context.Context
	log     *logrus.Entry

	loop  *scheduler.Loop
	clock scheduler.Clock

	camera     service.FrameSource
	sensor     service.TemperatureSensor
	detector   Detector
	recognizer service.Recognizer
	audio      service.AudioSvc
	display    service.DisplaySvc

	users  store.UserStore
	events store.EventStore

	sampler   *Sampler
	countdown *scheduler.Countdown

	pollInterval       time.Duration
	denialWindow       time.Duration
	acceptWindow       time.Duration
	maxRetries         int
	highTemperature    float64
	durationBias       float64
	countdownMask      int
	countdownAccept    int
	countdownExhausted int
	unsaved            func(record model.EventRecord)

	// Поля ниже изменяются только в задачах loop
	state   model.State
	session *Session
	warmup  int
	caption string
	name    string
	last    *model.OutcomeNotice
	pollJob *scheduler.Job

	snapshotMu sync.Mutex
	snapshot   model.Snapshot

	serving      atomic.Bool
	served       chan struct{}
	teardownOnce sync.Once
	closeErr     error
}

// ConfigController конфигурация Controller
type ConfigController struct {
	Log *logrus.Logger

	// Часы планировщика. По умолчанию системные
	Clock scheduler.Clock

	// Период опроса камеры
	PollInterval time.Duration
	// Время показа отказа (маска, исчерпание попыток)
	DenialWindow time.Duration
	// Время показа разрешённого прохода
	AcceptWindow time.Duration

	// Колличество опросов до начала детекции. Отрицательное значение отключает прогрев
	Warmup int
	// Колличество вызовов распознавателя без совпадения до отказа
	MaxRetries int
	// Средняя температура, выше которой подаётся тревожный сигнал
	HighTemperature float64
	// Поправка в секундах к времени распознавания и замера
	DurationBias float64
	// Калибровочная поправка датчика температуры
	CalibrationOffset float64

	// Начальные значения обратного отсчёта после итогов
	CountdownMask      int
	CountdownAccept    int
	CountdownExhausted int

	// Вызывается для события, которое не удалось записать в журнал
	Unsaved func(record model.EventRecord)
}

// NewController конструктор Controller
func NewController(
	ctx context.Context,
	camera service.FrameSource,
	sensor service.TemperatureSensor,
	detector Detector,
	recognizer service.Recognizer,
	users store.UserStore,
	events store.EventStore,
	audio service.AudioSvc,
	display service.DisplaySvc,
	config *ConfigController,
) (*Controller, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	switch {
	case camera == nil:
		return nil, errors.New("не передана камера")
	case sensor == nil:
		return nil, errors.New("не передан датчик температуры")
	case detector == nil:
		return nil, errors.New("не передан детектор")
	case recognizer == nil:
		return nil, errors.New("не передан распознаватель")
	case users == nil:
		return nil, errors.New("не передан репозиторий пользователей")
	case events == nil:
		return nil, errors.New("не передан журнал событий")
	case audio == nil:
		return nil, errors.New("не передан сервис звука")
	case display == nil:
		return nil, errors.New("не передан сервис отображения")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	controller := Controller{
		ctx:     ctx,
		readCtx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "attendance",
			"scope":  "controller",
		}),
		camera:     camera,
		sensor:     sensor,
		detector:   detector,
		recognizer: recognizer,
		audio:      audio,
		display:    display,
		users:      users,
		events:     events,

		pollInterval:       pollInterval,
		denialWindow:       denialWindow,
		acceptWindow:       acceptWindow,
		warmup:             warmup,
		maxRetries:         maxRetries,
		highTemperature:    highTemperature,
		durationBias:       durationBias,
		countdownMask:      countdownMask,
		countdownAccept:    countdownAccept,
		countdownExhausted: countdownExhausted,
		unsaved:            config.Unsaved,

		state:   model.StateWaitingForFace,
		session: NewSession(),
		served:  make(chan struct{}),
	}
	if config.PollInterval != 0 {
		controller.pollInterval = config.PollInterval
	}
	if config.DenialWindow != 0 {
		controller.denialWindow = config.DenialWindow
	}
	if config.AcceptWindow != 0 {
		controller.acceptWindow = config.AcceptWindow
	}
	if config.Warmup > 0 {
		controller.warmup = config.Warmup
	} else if config.Warmup < 0 {
		controller.warmup = 0
	}
	if config.MaxRetries != 0 {
		controller.maxRetries = config.MaxRetries
	}
	if config.HighTemperature != 0 {
		controller.highTemperature = config.HighTemperature
	}
	if config.DurationBias != 0 {
		controller.durationBias = config.DurationBias
	}
	if config.CountdownMask != 0 {
		controller.countdownMask = config.CountdownMask
	}
	if config.CountdownAccept != 0 {
		controller.countdownAccept = config.CountdownAccept
	}
	if config.CountdownExhausted != 0 {
		controller.countdownExhausted = config.CountdownExhausted
	}
	if controller.unsaved == nil {
		controller.unsaved = func(record model.EventRecord) {
			controller.log.Errorf("событие %s потеряно", record.UID)
		}
	}

	controller.clock = config.Clock
	if controller.clock == nil {
		controller.clock = scheduler.RealClock()
	}
	controller.loop = scheduler.NewLoop(controller.clock)

	var err error
	controller.sampler, err = NewSampler(sensor, &ConfigSampler{
		Log:    config.Log,
		Clock:  controller.clock,
		Offset: config.CalibrationOffset,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	controller.countdown = scheduler.NewCountdown(controller.loop, CaptionCountdown, controller.setCaption)
	controller.publish()

	return &controller, nil
}

// Serve запускает опрос камеры и выполняет задачи до отмены ctx или вызова Close.
// При выходе освобождает камеру и датчик
func (m *Controller) Serve(ctx context.Context) error {
	if !m.serving.CompareAndSwap(false, true) {
		return errors.New("контроллер уже запущен")
	}
	defer close(m.served)

	m.log.Infof("старт контроля доступа (прогрев %d опросов)", m.warmup)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()
	m.readCtx = readCtx
	m.loop.Post(m.start)
	err := m.loop.Run(ctx)
	m.teardown()
	if err != nil && ctx.Err() == nil {
		return errors.Trace(err)
	}
	m.log.Info("контроль доступа остановлен")
	return errors.Trace(m.closeErr)
}

// Close останавливает контроллер: отменяет запланированные шаги, затем освобождает камеру
// и датчик, затем сбрасывает сессию. Шаг, выполняемый в момент вызова, завершается
func (m *Controller) Close() error {
	if m.serving.Load() {
		done := make(chan struct{})
		if m.loop.Post(func() {
			m.teardown()
			close(done)
		}) {
			select {
			case <-done:
			case <-m.served:
			}
		}
	}
	m.teardown()
	return m.closeErr
}

// Snapshot текущее состояние. Безопасен для вызова из любой горутины
func (m *Controller) Snapshot() model.Snapshot {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()
	return m.snapshot
}

func (m *Controller) start() {
	m.setCaption(CaptionAlign)
	m.poll()
}

func (m *Controller) teardown() {
	m.teardownOnce.Do(func() {
		// Порядок важен: сначала отмена шагов, затем оборудование, затем сессия
		m.pollJob.Cancel()
		m.pollJob = nil
		m.countdown.Cancel()

		if err := m.camera.Close(); err != nil {
			m.closeErr = errors.Annotate(err, "ошибка закрытия камеры")
			m.log.Errorf("%v", m.closeErr)
		}
		if err := m.sensor.Close(); err != nil {
			m.log.Errorf("ошибка закрытия датчика температуры: %v", err)
			if m.closeErr == nil {
				m.closeErr = errors.Annotate(err, "ошибка закрытия датчика температуры")
			}
		}

		m.session = nil
		m.state = model.StateClosed
		m.publish()
		m.loop.Stop()
	})
}

func (m *Controller) schedulePoll(after time.Duration) {
	m.pollJob = m.loop.After(after, m.poll)
}

// Один шаг опроса камеры
func (m *Controller) poll() {
	m.pollJob = nil
	if m.session == nil || m.state == model.StateClosed {
		return
	}
	defer m.publish()

	frame, err := m.camera.Next(m.readCtx)
	if err != nil {
		if model.IsNoFrame(err) {
			m.log.Warnf("кадр не получен: %v", err)
		} else {
			m.log.Errorf("ошибка чтения кадра: %v", err)
		}
		m.schedulePoll(m.pollInterval)
		return
	}
	m.display.Frame(frame)

	if m.warmup > 0 {
		m.warmup--
		m.schedulePoll(m.pollInterval)
		return
	}
	// Пока идёт обратный отсчёт, кадры только показываются
	if m.countdown.Active() {
		m.schedulePoll(m.pollInterval)
		return
	}
	m.setCaption("")
	m.setName("")

	now := m.clock.Now()
	result := m.detector.Detect(frame)
	if !result.HasFace() {
		if m.state == model.StateEvaluating {
			m.log.Debug("лицо пропало")
		}
		m.state = model.StateWaitingForFace
		m.schedulePoll(m.pollInterval)
		return
	}
	m.state = model.StateEvaluating
	m.session.FaceSeen(now)
	m.sampler.Sample(m.session, result)

	switch {
	case result.MaskSignal():
		m.log.Info("лицо в маске")
		m.finish(model.OutcomeMaskRejected, model.NewDenialEvent(now, true), model.CueMask, "",
			m.countdownMask, m.denialWindow)
	case result.Recognizable():
		m.recognize(frame, *result.FaceBox, now)
	default:
		m.schedulePoll(m.pollInterval)
	}
}

// Распознавание лица на кадре и переход к итогу
func (m *Controller) recognize(frame *model.Frame, face image.Rectangle, now time.Time) {
	m.session.StartRecognition(now)
	retries := m.session.IncRetries()

	outcome, err := m.recognizer.Predict(frame.GrayCrop(face))
	if err != nil {
		m.log.Warnf("ошибка распознавания: %v", err)
		outcome = model.RecognitionOutcome{}
	}
	if outcome.Matched {
		m.accept(outcome, now)
		return
	}
	m.log.Debugf("совпадение не найдено (расстояние %.2f, попытка %d из %d)", outcome.Distance, retries, m.maxRetries)
	if retries >= m.maxRetries {
		m.log.Info("попытки распознавания исчерпаны")
		m.finish(model.OutcomeRetryExhausted, model.NewDenialEvent(now, false), model.CueDenied, "",
			m.countdownExhausted, m.denialWindow)
		return
	}
	m.schedulePoll(m.pollInterval)
}

// Разрешённый проход опознанной личности
func (m *Controller) accept(outcome model.RecognitionOutcome, now time.Time) {
	name := ""
	identity, err := m.users.FindByID(outcome.IdentityID)
	switch {
	case err == nil:
		name = identity.Name
	case m.users.IsNotFound(err):
		m.log.Warnf("личность ID:%d отсутствует в базе", outcome.IdentityID)
	default:
		m.log.Errorf("ошибка получения личности ID:%d: %v", outcome.IdentityID, err)
	}

	var temperature *float64
	cue := model.CueCorrect
	if average, ok := m.session.AverageOnFirstAccess(now); ok {
		temperature = &average
		if average > m.highTemperature {
			cue = model.CueTemperature
		}
	} else {
		m.log.Warnf("проход ID:%d без замера температуры", outcome.IdentityID)
	}
	recognition := tool.Round(m.session.RecognitionDuration(), 2) + m.durationBias
	gauge := tool.Round(m.session.GaugeDuration(), 2) + m.durationBias

	m.log.Infof("проход ID:%d (%s), расстояние %.2f", outcome.IdentityID, name, outcome.Distance)
	record := model.NewAccessEvent(now, outcome.IdentityID, temperature, recognition, gauge)
	m.finish(model.OutcomeIdentityAccepted, record, cue, name, m.countdownAccept, m.acceptWindow)
}

// Фиксация итога попытки: сигнал, запись события, отображение, обратный отсчёт и
// отложенный возврат к ожиданию лица
func (m *Controller) finish(outcome model.Outcome, record model.EventRecord, cue model.Cue, name string, countdown int, window time.Duration) {
	m.session.Finalize()

	if err := m.audio.Play(cue); err != nil {
		m.log.Warnf("ошибка воспроизведения сигнала %s: %v", cue, err)
	}

	saved := true
	if err := m.events.Append(record); err != nil {
		saved = false
		m.log.Errorf("ошибка записи события %s: %v", record.UID, err)
		m.unsaved(record)
	}

	notice := model.OutcomeNotice{
		CreateAt:    record.CreateAt,
		Outcome:     outcome,
		Name:        name,
		Temperature: record.Temperature,
		Saved:       saved,
	}
	m.last = &notice
	m.display.Outcome(notice)
	if name != "" {
		m.setName(name)
	}

	m.state = model.StateDisplayingOutcome
	m.countdown.Start(countdown)
	m.pollJob = m.loop.After(window, m.endOutcome)
}

// Окончание показа итога. Сессия заменяется новой
func (m *Controller) endOutcome() {
	m.pollJob = nil
	if m.state == model.StateClosed {
		return
	}
	m.session = NewSession()
	m.state = model.StateWaitingForFace
	m.poll()
}

func (m *Controller) setCaption(text string) {
	if m.caption == text {
		return
	}
	m.caption = text
	m.display.Caption(text)
	m.publish()
}

func (m *Controller) setName(text string) {
	if m.name == text {
		return
	}
	m.name = text
	m.display.Name(text)
}

// Публикация состояния для Snapshot
func (m *Controller) publish() {
	snapshot := model.Snapshot{
		State:   m.state,
		Caption: m.caption,
	}
	if m.session != nil {
		snapshot.Retries = m.session.Retries()
		snapshot.Readings = m.session.Readings()
	}
	if m.last != nil {
		last := *m.last
		snapshot.Last = &last
	}
	m.snapshotMu.Lock()
	m.snapshot = snapshot
	m.snapshotMu.Unlock()
}
