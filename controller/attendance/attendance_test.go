package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirsrus/facegate/model"

	"github.com/juju/errors"
)

func TestController_WithoutFace(t *testing.T) {
	tests := []struct {
		name   string
		result model.DetectionResult
	}{
		{name: "лица нет", result: model.DetectionResult{}},
		{name: "лицо без глаз", result: faceOnly()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRig(ConfigController{})
			if err != nil {
				t.Fatal(err)
			}
			r.detector.results = []model.DetectionResult{tt.result}
			r.start()
			r.polls(50)

			if r.detector.calls != 51 {
				t.Errorf("детектор вызван %d раз, want 51", r.detector.calls)
			}
			if r.sensor.reads != 0 {
				t.Errorf("датчик прочитан %d раз, want 0", r.sensor.reads)
			}
			if r.recognizer.calls != 0 {
				t.Errorf("распознаватель вызван %d раз, want 0", r.recognizer.calls)
			}
			if len(r.events.records) != 0 {
				t.Errorf("записано событий: %d, want 0", len(r.events.records))
			}
			state := r.controller.Snapshot().State
			if tt.result.HasFace() && state != model.StateEvaluating {
				t.Errorf("состояние %s, want %s", state, model.StateEvaluating)
			}
			if !tt.result.HasFace() && state != model.StateWaitingForFace {
				t.Errorf("состояние %s, want %s", state, model.StateWaitingForFace)
			}
		})
	}
}

func TestController_MaskRejectedOnSameFrame(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.detector.results = []model.DetectionResult{faceEyes()}
	r.start()

	if len(r.events.records) != 1 {
		t.Fatalf("записано событий: %d, want 1", len(r.events.records))
	}
	record := r.events.records[0]
	if !record.Mask || record.IdentityID != nil || record.Temperature != nil {
		t.Errorf("событие %+v, want отказ из-за маски без личности и температуры", record)
	}
	if r.recognizer.calls != 0 {
		t.Errorf("распознаватель вызван %d раз, want 0", r.recognizer.calls)
	}
	if len(r.audio.cues) != 1 || r.audio.cues[0] != model.CueMask {
		t.Errorf("сигналы %v, want [%s]", r.audio.cues, model.CueMask)
	}
	snapshot := r.controller.Snapshot()
	if snapshot.State != model.StateDisplayingOutcome {
		t.Errorf("состояние %s, want %s", snapshot.State, model.StateDisplayingOutcome)
	}
	if snapshot.Last == nil || snapshot.Last.Outcome != model.OutcomeMaskRejected || !snapshot.Last.Saved {
		t.Errorf("последний итог %+v", snapshot.Last)
	}
	if snapshot.Caption != "Следующий снимок через\n5" {
		t.Errorf("подпись %q", snapshot.Caption)
	}
}

func TestController_IdentityAccepted(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.detector.results = []model.DetectionResult{faceEyesNose()}
	r.recognizer.outcomes = []model.RecognitionOutcome{
		{Distance: 5000},
		{Distance: 4600},
		{IdentityID: 42, Matched: true, Distance: 3000},
	}
	r.start()
	r.polls(2)

	if len(r.events.records) != 1 {
		t.Fatalf("записано событий: %d, want 1", len(r.events.records))
	}
	record := r.events.records[0]
	if record.IdentityID == nil || *record.IdentityID != 42 {
		t.Fatalf("событие %+v, want проход ID:42", record)
	}
	if record.Temperature == nil || *record.Temperature != 36.12 {
		t.Errorf("температура %v, want 36.12", record.Temperature)
	}
	// Распознавание начато на кадре появления лица, замер длился два периода опроса
	if record.RecognitionDuration == nil || *record.RecognitionDuration != 8 {
		t.Errorf("время распознавания %v, want 8", record.RecognitionDuration)
	}
	if record.GaugeDuration == nil || *record.GaugeDuration != 8.25 {
		t.Errorf("время замера %v, want 8.25", record.GaugeDuration)
	}
	if record.Mask {
		t.Error("проход отмечен как маска")
	}
	if len(r.audio.cues) != 1 || r.audio.cues[0] != model.CueCorrect {
		t.Errorf("сигналы %v, want [%s]", r.audio.cues, model.CueCorrect)
	}
	if len(r.display.names) == 0 || r.display.names[len(r.display.names)-1] != "Иван Петров" {
		t.Errorf("имена на экране %v", r.display.names)
	}
	if r.display.outcomes[0].Outcome != model.OutcomeIdentityAccepted || r.display.outcomes[0].Name != "Иван Петров" {
		t.Errorf("итог на экране %+v", r.display.outcomes[0])
	}
}

func TestController_AcceptCue(t *testing.T) {
	tests := []struct {
		name      string
		raw       float64
		sensorErr error
		identity  uint
		wantCue   model.Cue
		wantTemp  bool
		wantName  string
	}{
		{
			name:     "нормальная температура",
			raw:      27.0,
			identity: 42,
			wantCue:  model.CueCorrect,
			wantTemp: true,
			wantName: "Иван Петров",
		},
		{
			name:     "высокая температура не запрещает проход",
			raw:      28.0,
			identity: 42,
			wantCue:  model.CueTemperature,
			wantTemp: true,
			wantName: "Иван Петров",
		},
		{
			name:      "без замеров событие без температуры",
			sensorErr: errors.New("шина недоступна"),
			identity:  42,
			wantCue:   model.CueCorrect,
			wantTemp:  false,
			wantName:  "Иван Петров",
		},
		{
			name:     "личность отсутствует в базе",
			raw:      26.0,
			identity: 7,
			wantCue:  model.CueCorrect,
			wantTemp: true,
			wantName: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRig(ConfigController{})
			if err != nil {
				t.Fatal(err)
			}
			r.sensor.values = []float64{tt.raw}
			r.sensor.err = tt.sensorErr
			r.detector.results = []model.DetectionResult{faceEyesNose()}
			r.recognizer.outcomes = []model.RecognitionOutcome{{IdentityID: tt.identity, Matched: true, Distance: 100}}
			r.start()

			if len(r.events.records) != 1 {
				t.Fatalf("записано событий: %d, want 1", len(r.events.records))
			}
			record := r.events.records[0]
			if record.IdentityID == nil || *record.IdentityID != tt.identity {
				t.Errorf("личность %v, want %d", record.IdentityID, tt.identity)
			}
			if (record.Temperature != nil) != tt.wantTemp {
				t.Errorf("температура %v, want наличие %t", record.Temperature, tt.wantTemp)
			}
			if r.audio.cues[0] != tt.wantCue {
				t.Errorf("сигнал %s, want %s", r.audio.cues[0], tt.wantCue)
			}
			if r.display.outcomes[0].Name != tt.wantName {
				t.Errorf("имя %q, want %q", r.display.outcomes[0].Name, tt.wantName)
			}
		})
	}
}

func TestController_RetryExhausted(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.detector.results = []model.DetectionResult{faceEyesNose()}
	r.start()
	r.polls(8)
	if len(r.events.records) != 0 {
		t.Fatalf("после 9 попыток записано событий: %d, want 0", len(r.events.records))
	}
	if got := r.controller.Snapshot().Retries; got != 9 {
		t.Errorf("попыток %d, want 9", got)
	}

	r.polls(1)
	if r.recognizer.calls != 10 {
		t.Errorf("распознаватель вызван %d раз, want 10", r.recognizer.calls)
	}
	if len(r.events.records) != 1 {
		t.Fatalf("записано событий: %d, want 1", len(r.events.records))
	}
	record := r.events.records[0]
	if record.IdentityID != nil || record.Mask {
		t.Errorf("событие %+v, want отказ без маски", record)
	}
	if len(r.audio.cues) != 1 || r.audio.cues[0] != model.CueDenied {
		t.Errorf("сигналы %v, want [%s]", r.audio.cues, model.CueDenied)
	}

	// Окно показа и обратный отсчёт: новых итогов нет, счётчик сброшен
	r.advance(time.Second)
	r.polls(7)
	if len(r.events.records) != 1 {
		t.Errorf("записано событий: %d, want 1", len(r.events.records))
	}
	if got := r.controller.Snapshot().Retries; got != 0 {
		t.Errorf("после итога попыток %d, want 0", got)
	}
	if r.recognizer.calls != 10 {
		t.Errorf("во время отсчёта распознаватель вызван %d раз, want 10", r.recognizer.calls)
	}
}

func TestController_SessionResetAfterAccept(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.detector.results = []model.DetectionResult{faceEyesNose()}
	r.recognizer.outcomes = []model.RecognitionOutcome{
		{Distance: 5000},
		{IdentityID: 42, Matched: true, Distance: 3000},
	}
	r.start()
	r.polls(1)
	if r.controller.Snapshot().State != model.StateDisplayingOutcome {
		t.Fatalf("состояние %s, want %s", r.controller.Snapshot().State, model.StateDisplayingOutcome)
	}

	r.advance(acceptWindow)
	session := r.controller.session
	if session.Readings() != 0 || session.Retries() != 0 || session.RecognitionStarted() || session.Finalized() {
		t.Errorf("новая сессия не пуста: замеров %d, попыток %d, распознавание %t",
			session.Readings(), session.Retries(), session.RecognitionStarted())
	}
	if _, ok := session.AverageOnFirstAccess(r.clock.Now()); ok {
		t.Error("в новой сессии есть средняя температура")
	}
	if r.controller.Snapshot().State != model.StateWaitingForFace {
		t.Errorf("состояние %s, want %s", r.controller.Snapshot().State, model.StateWaitingForFace)
	}
}

func TestController_CountdownSuspendsDetection(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.detector.results = []model.DetectionResult{faceEyes(), faceOnly()}
	r.start()

	r.advance(denialWindow)
	r.polls(23)
	if r.detector.calls != 1 {
		t.Errorf("во время отсчёта детектор вызван %d раз, want 1", r.detector.calls)
	}
	want := []string{
		CaptionAlign,
		"",
		"Следующий снимок через\n5",
		"Следующий снимок через\n4",
		"Следующий снимок через\n3",
		"Следующий снимок через\n2",
	}
	if len(r.display.captions) != len(want) {
		t.Fatalf("подписи %q, want %q", r.display.captions, want)
	}
	for i := range want {
		if r.display.captions[i] != want[i] {
			t.Errorf("подпись %d: %q, want %q", i, r.display.captions[i], want[i])
		}
	}

	r.polls(1)
	if r.detector.calls != 2 {
		t.Errorf("после отсчёта детектор вызван %d раз, want 2", r.detector.calls)
	}
	if r.display.captions[len(r.display.captions)-1] != "" {
		t.Errorf("подпись не скрыта: %q", r.display.captions[len(r.display.captions)-1])
	}
}

func TestController_Warmup(t *testing.T) {
	r, err := newRig(ConfigController{Warmup: 3})
	if err != nil {
		t.Fatal(err)
	}
	r.detector.results = []model.DetectionResult{faceOnly()}
	r.start()
	r.polls(2)
	if r.detector.calls != 0 {
		t.Errorf("во время прогрева детектор вызван %d раз", r.detector.calls)
	}
	if r.display.frames != 3 {
		t.Errorf("показано кадров %d, want 3", r.display.frames)
	}
	if r.controller.Snapshot().Caption != CaptionAlign {
		t.Errorf("подпись %q, want %q", r.controller.Snapshot().Caption, CaptionAlign)
	}
	r.polls(1)
	if r.detector.calls != 1 {
		t.Errorf("после прогрева детектор вызван %d раз, want 1", r.detector.calls)
	}
	if r.controller.Snapshot().Caption != "" {
		t.Errorf("подпись %q не скрыта", r.controller.Snapshot().Caption)
	}
}

func TestController_NoFrame(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.camera.err = errors.Trace(model.ErrNoFrame)
	r.start()
	r.polls(4)
	if r.camera.Calls() != 5 {
		t.Errorf("камера опрошена %d раз, want 5", r.camera.Calls())
	}
	if r.detector.calls != 0 {
		t.Errorf("детектор вызван %d раз без кадра", r.detector.calls)
	}
}

func TestController_PersistenceFailure(t *testing.T) {
	r, err := newRig(ConfigController{})
	if err != nil {
		t.Fatal(err)
	}
	r.events.err = errors.New("база недоступна")
	r.detector.results = []model.DetectionResult{faceEyes()}
	r.start()

	if len(r.unsaved) != 1 || !r.unsaved[0].Mask {
		t.Fatalf("переданы на повтор %+v, want одно событие маски", r.unsaved)
	}
	if r.display.outcomes[0].Saved {
		t.Error("итог отмечен как записанный")
	}
	if r.controller.Snapshot().State != model.StateDisplayingOutcome {
		t.Errorf("ошибка записи прервала показ итога: %s", r.controller.Snapshot().State)
	}
}

func TestController_Close(t *testing.T) {
	tests := []struct {
		name    string
		results []model.DetectionResult
	}{
		{name: "во время ожидания лица", results: nil},
		{name: "во время показа итога", results: []model.DetectionResult{faceEyes()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRig(ConfigController{})
			if err != nil {
				t.Fatal(err)
			}
			r.detector.results = tt.results
			r.start()
			r.polls(2)
			if r.clock.Pending() == 0 {
				t.Fatal("нет запланированных шагов до закрытия")
			}

			if err := r.controller.Close(); err != nil {
				t.Fatal(err)
			}
			if !r.camera.closed || !r.sensor.closed {
				t.Error("камера или датчик не закрыты")
			}
			if r.camera.pendingOnClose != 0 {
				t.Errorf("при закрытии камеры осталось шагов: %d", r.camera.pendingOnClose)
			}
			if r.controller.session != nil {
				t.Error("сессия не сброшена")
			}
			if r.controller.Snapshot().State != model.StateClosed {
				t.Errorf("состояние %s, want %s", r.controller.Snapshot().State, model.StateClosed)
			}

			calls := r.camera.Calls()
			r.advance(10 * time.Second)
			if r.camera.Calls() != calls {
				t.Error("опрос камеры после закрытия")
			}
			if err := r.controller.Close(); err != nil {
				t.Errorf("повторный Close() = %v", err)
			}
		})
	}
}

func TestController_Serve(t *testing.T) {
	camera := &fakeCamera{frame: model.NewFrame(time.Now(), testFrameImage(), nil)}
	sensor := &fakeSensor{values: []float64{26}}
	controller, err := NewController(context.Background(), camera, sensor, &fakeDetector{}, &fakeRecognizer{},
		&fakeUsers{}, &fakeEvents{}, &fakeAudio{}, &fakeDisplay{}, &ConfigController{
			PollInterval: time.Millisecond,
			Warmup:       -1,
		})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- controller.Serve(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for camera.Calls() < 5 {
		if time.Now().After(deadline) {
			t.Fatal("камера не опрашивается")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := controller.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() не завершился после Close()")
	}
	if !camera.closed || !sensor.closed {
		t.Error("камера или датчик не закрыты")
	}
}

func TestController_ServeCanceled(t *testing.T) {
	camera := &fakeCamera{frame: model.NewFrame(time.Now(), testFrameImage(), nil)}
	controller, err := NewController(context.Background(), camera, &fakeSensor{}, &fakeDetector{}, &fakeRecognizer{},
		&fakeUsers{}, &fakeEvents{}, &fakeAudio{}, &fakeDisplay{}, &ConfigController{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := controller.Serve(ctx); err != nil {
		t.Errorf("Serve() = %v", err)
	}
	if controller.Snapshot().State != model.StateClosed {
		t.Errorf("состояние %s, want %s", controller.Snapshot().State, model.StateClosed)
	}
	if err := controller.Serve(context.Background()); err == nil {
		t.Error("повторный Serve() не вернул ошибку")
	}
}

// stallingCamera не отдаёт кадров до отмены контекста чтения
type stallingCamera struct {
	fakeCamera
	once     sync.Once
	canceled chan struct{}
}

func (m *stallingCamera) Next(ctx context.Context) (*model.Frame, error) {
	<-ctx.Done()
	m.once.Do(func() { close(m.canceled) })
	return nil, errors.Annotate(model.ErrNoFrame, "чтение прервано")
}

func TestController_ServeCanceledDuringRead(t *testing.T) {
	camera := &stallingCamera{canceled: make(chan struct{})}
	controller, err := NewController(context.Background(), camera, &fakeSensor{}, &fakeDetector{}, &fakeRecognizer{},
		&fakeUsers{}, &fakeEvents{}, &fakeAudio{}, &fakeDisplay{}, &ConfigController{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- controller.Serve(ctx)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() не завершился: чтение кадра не прервано отменой контекста")
	}
	select {
	case <-camera.canceled:
	default:
		t.Error("контекст чтения кадра не отменён")
	}
	if !camera.closed {
		t.Error("камера не закрыта")
	}
}
