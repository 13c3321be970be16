package attendance

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/scheduler"

	"github.com/juju/errors"
)

var (
	testStart = time.Date(2021, 3, 1, 8, 0, 0, 0, time.UTC)
	testFace  = image.Rect(0, 80, 480, 560)
)

type fakeCamera struct {
	mu     sync.Mutex
	frame  *model.Frame
	err    error
	calls  int
	closed bool
	// Колличество отложенных вызовов часов на момент закрытия
	pendingOnClose int
	clock          *scheduler.ManualClock
}

func (m *fakeCamera) Next(_ context.Context) (*model.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.frame, nil
}

func (m *fakeCamera) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.clock != nil {
		m.pendingOnClose = m.clock.Pending()
	}
	return nil
}

func (m *fakeCamera) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeSensor struct {
	values []float64
	err    error
	reads  int
	closed bool
}

func (m *fakeSensor) Read() (float64, error) {
	m.reads++
	if m.err != nil {
		return 0, m.err
	}
	if len(m.values) == 0 {
		return 0, errors.New("нет значений")
	}
	value := m.values[0]
	if len(m.values) > 1 {
		m.values = m.values[1:]
	}
	return value, nil
}

func (m *fakeSensor) Close() error {
	m.closed = true
	return nil
}

// Детектор, возвращающий результаты по порядку. Последний результат повторяется
type fakeDetector struct {
	results []model.DetectionResult
	calls   int
}

func (m *fakeDetector) Detect(_ *model.Frame) model.DetectionResult {
	m.calls++
	if len(m.results) == 0 {
		return model.DetectionResult{}
	}
	result := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return result
}

type fakeRecognizer struct {
	outcomes []model.RecognitionOutcome
	calls    int
}

func (m *fakeRecognizer) Predict(_ *image.Gray) (model.RecognitionOutcome, error) {
	m.calls++
	if len(m.outcomes) == 0 {
		return model.RecognitionOutcome{Distance: 9000}, nil
	}
	outcome := m.outcomes[0]
	if len(m.outcomes) > 1 {
		m.outcomes = m.outcomes[1:]
	}
	return outcome, nil
}

var errNotFound = errors.New("не найдено")

type fakeUsers struct {
	identities map[uint]model.Identity
}

func (m *fakeUsers) IsNotFound(err error) bool {
	return errors.Cause(err) == errNotFound
}

func (m *fakeUsers) FindByID(id uint) (*model.Identity, error) {
	identity, ok := m.identities[id]
	if !ok {
		return nil, errors.Trace(errNotFound)
	}
	return &identity, nil
}

func (m *fakeUsers) AddUser(identity model.Identity, _ string) (*model.Identity, error) {
	m.identities[identity.ID] = identity
	return &identity, nil
}

func (m *fakeUsers) IncrementFaces(_ uint) error {
	return nil
}

type fakeEvents struct {
	records []model.EventRecord
	err     error
}

func (m *fakeEvents) Append(record model.EventRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *fakeEvents) Events(_, _ time.Time) ([]model.EventRecord, error) {
	return m.records, nil
}

func (m *fakeEvents) Clean(_ time.Time) (int64, error) {
	return 0, nil
}

type fakeAudio struct {
	cues []model.Cue
}

func (m *fakeAudio) Play(cue model.Cue) error {
	m.cues = append(m.cues, cue)
	return nil
}

type fakeDisplay struct {
	captions []string
	names    []string
	outcomes []model.OutcomeNotice
	frames   int
}

func (m *fakeDisplay) Caption(text string)                { m.captions = append(m.captions, text) }
func (m *fakeDisplay) Name(text string)                   { m.names = append(m.names, text) }
func (m *fakeDisplay) Clock(_ time.Time)                  {}
func (m *fakeDisplay) Frame(_ *model.Frame)               { m.frames++ }
func (m *fakeDisplay) Outcome(notice model.OutcomeNotice) { m.outcomes = append(m.outcomes, notice) }

// Тестовое окружение контроллера на ручных часах
type rig struct {
	clock      *scheduler.ManualClock
	camera     *fakeCamera
	sensor     *fakeSensor
	detector   *fakeDetector
	recognizer *fakeRecognizer
	users      *fakeUsers
	events     *fakeEvents
	audio      *fakeAudio
	display    *fakeDisplay
	unsaved    []model.EventRecord
	controller *Controller
}

func newRig(config ConfigController) (*rig, error) {
	clock := scheduler.NewManualClock(testStart)
	r := rig{
		clock: clock,
		camera: &fakeCamera{
			frame: model.NewFrame(testStart, image.NewRGBA(image.Rect(0, 0, model.FrameWidth, model.FrameHeight)), nil),
			clock: clock,
		},
		sensor:     &fakeSensor{values: []float64{25.44}},
		detector:   &fakeDetector{},
		recognizer: &fakeRecognizer{},
		users: &fakeUsers{identities: map[uint]model.Identity{
			42: {ID: 42, Name: "Иван Петров", Role: model.RoleUser},
		}},
		events:  &fakeEvents{},
		audio:   &fakeAudio{},
		display: &fakeDisplay{},
	}
	config.Clock = clock
	if config.Warmup == 0 {
		config.Warmup = -1
	}
	config.Unsaved = func(record model.EventRecord) {
		r.unsaved = append(r.unsaved, record)
	}
	var err error
	r.controller, err = NewController(context.Background(), r.camera, r.sensor, r.detector, r.recognizer,
		r.users, r.events, r.audio, r.display, &config)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Первый опрос
func (m *rig) start() {
	m.controller.loop.Post(m.controller.start)
	m.controller.loop.Drain()
}

// Сдвиг часов с выполнением наступивших задач
func (m *rig) advance(d time.Duration) {
	m.clock.Advance(d)
	m.controller.loop.Drain()
}

// n периодов опроса
func (m *rig) polls(n int) {
	for i := 0; i < n; i++ {
		m.advance(pollInterval)
	}
}

func faceOnly() model.DetectionResult {
	face := testFace
	return model.DetectionResult{FaceBox: &face}
}

func faceEyes() model.DetectionResult {
	face := testFace
	return model.DetectionResult{FaceBox: &face, EyeFound: true}
}

func faceEyesNose() model.DetectionResult {
	face := testFace
	return model.DetectionResult{FaceBox: &face, EyeFound: true, NoseFound: true}
}

func testFrameImage() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, model.FrameWidth, model.FrameHeight))
}
