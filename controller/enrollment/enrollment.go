package enrollment

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/scheduler"
	"github.com/kirsrus/facegate/service"
	"github.com/kirsrus/facegate/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	pollInterval    = 125 * time.Millisecond
	captureInterval = 1000 * time.Millisecond
	warmup          = 15
	countdownFrom   = 4
	thumbSize       = 150

	CaptionAlign     = "Расположите глаза\nв рамке"
	CaptionCountdown = "Следующий снимок через\n%d"
)

// Detector поиск лица и глаз на кадре
type Detector interface {
	DetectFaceEyes(frame *model.Frame) model.DetectionResult
}

// Controller регистрация лиц одной личности: на каждом кадре с лицом и глазами сохраняет
// миниатюру лица и увеличивает счётчик лиц личности. Инициализируется через NewController
type Controller struct {
	ctx context.Context
	// Контекст чтения кадров: отменяется вместе с ctx конструктора или ctx Serve
	readCtx context.Context
	log     *logrus.Entry

	loop  *scheduler.Loop
	clock scheduler.Clock

	identityID uint

	camera   service.FrameSource
	detector Detector
	audio    service.AudioSvc
	display  service.DisplaySvc
	faces    store.FaceStore
	users    store.UserStore

	countdown *scheduler.Countdown

	pollInterval    time.Duration
	captureInterval time.Duration
	countdownFrom   int
	thumbSize       int
	limit           int

	// Изменяются только в задачах loop
	warmup  int
	caption string
	closed  bool
	pollJob *scheduler.Job

	captured atomic.Int64

	serving      atomic.Bool
	served       chan struct{}
	teardownOnce sync.Once
	closeErr     error
}

// ConfigController конфигурация Controller
type ConfigController struct {
	Log   *logrus.Logger
	Clock scheduler.Clock

	// Период опроса камеры
	PollInterval time.Duration
	// Пауза после сохранения лица
	CaptureInterval time.Duration
	// Колличество опросов до начала поиска лица. Отрицательное значение отключает прогрев
	Warmup int
	// Начальное значение обратного отсчёта после сохранения
	Countdown int
	// Сторона миниатюры
	ThumbSize int
	// Остановиться после сохранения заданного колличества лиц (0 - без ограничения)
	Limit int
}

// NewController конструктор Controller
func NewController(
	ctx context.Context,
	identityID uint,
	camera service.FrameSource,
	detector Detector,
	faces store.FaceStore,
	users store.UserStore,
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
	case detector == nil:
		return nil, errors.New("не передан детектор")
	case faces == nil:
		return nil, errors.New("не передано хранилище лиц")
	case users == nil:
		return nil, errors.New("не передан репозиторий пользователей")
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
			"module":   "enrollment",
			"scope":    "controller",
			"identity": identityID,
		}),
		identityID: identityID,
		camera:     camera,
		detector:   detector,
		audio:      audio,
		display:    display,
		faces:      faces,
		users:      users,

		pollInterval:    pollInterval,
		captureInterval: captureInterval,
		countdownFrom:   countdownFrom,
		thumbSize:       thumbSize,
		limit:           config.Limit,
		warmup:          warmup,
		served:          make(chan struct{}),
	}
	if config.PollInterval != 0 {
		controller.pollInterval = config.PollInterval
	}
	if config.CaptureInterval != 0 {
		controller.captureInterval = config.CaptureInterval
	}
	if config.Countdown != 0 {
		controller.countdownFrom = config.Countdown
	}
	if config.ThumbSize != 0 {
		controller.thumbSize = config.ThumbSize
	}
	if config.Warmup > 0 {
		controller.warmup = config.Warmup
	} else if config.Warmup < 0 {
		controller.warmup = 0
	}

	controller.clock = config.Clock
	if controller.clock == nil {
		controller.clock = scheduler.RealClock()
	}
	controller.loop = scheduler.NewLoop(controller.clock)
	controller.countdown = scheduler.NewCountdown(controller.loop, CaptionCountdown, controller.setCaption)

	return &controller, nil
}

// Serve проверяет наличие личности и выполняет захват до отмены ctx, вызова Close
// или сохранения заданного колличества лиц
func (m *Controller) Serve(ctx context.Context) error {
	if !m.serving.CompareAndSwap(false, true) {
		return errors.New("регистрация уже запущена")
	}
	defer close(m.served)

	identity, err := m.users.FindByID(m.identityID)
	if err != nil {
		m.teardown()
		return errors.Annotatef(err, "личность ID:%d", m.identityID)
	}
	m.log.Infof("регистрация лиц %s (сохранено ранее: %d)", identity.Name, identity.Faces)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()
	m.readCtx = readCtx

	m.loop.Post(m.start)
	err = m.loop.Run(ctx)
	m.teardown()
	if err != nil && ctx.Err() == nil {
		return errors.Trace(err)
	}
	m.log.Infof("регистрация завершена, сохранено лиц: %d", m.Captured())
	return errors.Trace(m.closeErr)
}

// Close прерывает регистрацию и освобождает камеру
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

// Captured колличество сохранённых лиц
func (m *Controller) Captured() int {
	return int(m.captured.Load())
}

func (m *Controller) start() {
	m.setCaption(CaptionAlign)
	m.poll()
}

func (m *Controller) teardown() {
	m.teardownOnce.Do(func() {
		m.closed = true
		m.pollJob.Cancel()
		m.pollJob = nil
		m.countdown.Cancel()
		if err := m.camera.Close(); err != nil {
			m.closeErr = errors.Annotate(err, "ошибка закрытия камеры")
			m.log.Errorf("%v", m.closeErr)
		}
		m.loop.Stop()
	})
}

func (m *Controller) schedulePoll(after time.Duration) {
	m.pollJob = m.loop.After(after, m.poll)
}

func (m *Controller) poll() {
	m.pollJob = nil
	if m.closed {
		return
	}

	frame, err := m.camera.Next(m.readCtx)
	if err != nil {
		m.log.Warnf("кадр не получен: %v", err)
		m.schedulePoll(m.pollInterval)
		return
	}
	m.display.Frame(frame)

	if m.warmup > 0 {
		m.warmup--
		m.schedulePoll(m.pollInterval)
		return
	}
	if m.countdown.Active() {
		m.schedulePoll(m.pollInterval)
		return
	}
	m.setCaption("")

	result := m.detector.DetectFaceEyes(frame)
	if !result.HasFace() || !result.EyeFound {
		m.schedulePoll(m.pollInterval)
		return
	}
	if err := m.capture(frame, *result.FaceBox); err != nil {
		m.log.Errorf("лицо не сохранено: %s", errors.ErrorStack(err))
		m.schedulePoll(m.pollInterval)
		return
	}

	if m.limit > 0 && m.Captured() >= m.limit {
		m.log.Infof("сохранено %d лиц", m.Captured())
		m.teardown()
		return
	}
	m.schedulePoll(m.captureInterval)
}

// Сохранение миниатюры лица
func (m *Controller) capture(frame *model.Frame, face image.Rectangle) error {
	thumb := model.Thumbnail(frame.ColorCrop(face), m.thumbSize)
	name, err := m.faces.SaveFace(m.identityID, m.clock.Now(), thumb)
	if err != nil {
		return errors.Trace(err)
	}
	if err := m.users.IncrementFaces(m.identityID); err != nil {
		m.log.Errorf("ошибка увеличения счётчика лиц: %v", err)
	}
	m.captured.Add(1)
	m.log.Infof("сохранено лицо %s", name)

	if err := m.audio.Play(model.CueCorrect); err != nil {
		m.log.Warnf("ошибка воспроизведения сигнала: %v", err)
	}
	m.countdown.Start(m.countdownFrom)
	return nil
}

func (m *Controller) setCaption(text string) {
	if m.caption == text {
		return
	}
	m.caption = text
	m.display.Caption(text)
}
