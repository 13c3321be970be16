package camera

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/mailbox"
	"github.com/kirsrus/facegate/pkg/tool"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	frameTimeout = 2 * time.Second
	// Ожидание остановки горутины захвата при закрытии
	closeTimeout = 2 * time.Second
	// Пауза после неудачного чтения кадра
	readRetry = 100 * time.Millisecond
	angle     = 90.0
	pivot     = 320
)

// Camera захват кадров с камеры через OpenCV. Отдельная горутина непрерывно читает кадры,
// приводит их к канонической ориентации и кладёт последний в ящик. Инициализируется через NewCamera
type Camera struct {
	log *logrus.Entry

	capture  *gocv.VideoCapture
	rotation gocv.Mat
	flipCode int
	size     image.Point
	timeout  time.Duration

	frames *mailbox.Mailbox[*model.Frame]

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ConfigCamera конфигурация Camera
type ConfigCamera struct {
	Log *logrus.Logger

	// Номер устройства видеозахвата
	Device int
	// Код отражения (0 - по вертикальной оси, 1 - по горизонтальной, -1 - по обеим)
	FlipCode int
	// Угол поворота в градусах. По умолчанию 90
	Angle float64
	// Центр поворота. По умолчанию (320, 320)
	PivotX int
	PivotY int
	// Таймаут ожидания кадра. Отрицательное значение отключает ограничение
	FrameTimeout time.Duration
}

// NewCamera конструктор Camera. Если камеру не удалось открыть, возвращает ошибку инициализации
func NewCamera(config *ConfigCamera) (*Camera, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	capture, err := gocv.OpenVideoCapture(config.Device)
	if err != nil {
		return nil, model.NewInitializationError("камеры", err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, model.NewInitializationError("камеры", errors.Errorf("устройство %d не открыто", config.Device))
	}

	center := image.Pt(pivot, pivot)
	if config.PivotX != 0 || config.PivotY != 0 {
		center = image.Pt(config.PivotX, config.PivotY)
	}
	rotate := angle
	if config.Angle != 0 {
		rotate = config.Angle
	}

	camera := Camera{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "camera",
			"scope":  "service",
		}),
		capture:  capture,
		rotation: gocv.GetRotationMatrix2D(center, rotate, 1),
		flipCode: config.FlipCode,
		size:     image.Pt(model.FrameWidth, model.FrameHeight),
		timeout:  frameTimeout,
		frames:   mailbox.New[*model.Frame](),
		done:     make(chan struct{}),
	}
	switch {
	case config.FrameTimeout > 0:
		camera.timeout = config.FrameTimeout
	case config.FrameTimeout < 0:
		camera.timeout = 0
	}

	camera.wg.Add(1)
	go camera.grab()

	camera.log.Infof("камера %d открыта", config.Device)
	return &camera, nil
}

// Next последний полученный кадр. Если нового кадра нет дольше таймаута, возвращает model.ErrNoFrame
func (m *Camera) Next(ctx context.Context) (*model.Frame, error) {
	frame, err := m.frames.Take(ctx, m.timeout)
	if err != nil {
		switch errors.Cause(err) {
		case mailbox.ErrTimeout:
			return nil, errors.Annotatef(model.ErrNoFrame, "нет кадра %s", m.timeout)
		case mailbox.ErrClosed:
			return nil, errors.Annotate(model.ErrNoFrame, "камера закрыта")
		}
		return nil, errors.Trace(err)
	}
	return frame, nil
}

// Close останавливает захват и освобождает устройство
func (m *Camera) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.frames.Close()
		if tool.WaitTimeout(&m.wg, closeTimeout) {
			err = m.capture.Close()
			_ = m.rotation.Close()
			m.log.Info("камера закрыта")
			return
		}
		// Чтение кадра зависло: закрытие устройства прерывает его
		m.log.Warnf("захват кадров не остановлен за %s, устройство закрывается принудительно", closeTimeout)
		err = m.capture.Close()
		if !tool.WaitTimeout(&m.wg, closeTimeout) {
			// Матрица поворота остаётся у зависшей горутины
			m.log.Error("горутина захвата кадров не завершилась")
			return
		}
		_ = m.rotation.Close()
		m.log.Info("камера закрыта")
	})
	return errors.Trace(err)
}

// Цикл чтения кадров
func (m *Camera) grab() {
	defer m.wg.Done()

	src := gocv.NewMat()
	defer func() { _ = src.Close() }()

	connected := true
	for {
		select {
		case <-m.done:
			return
		default:
		}

		if ok := m.capture.Read(&src); !ok || src.Empty() {
			if connected {
				m.log.Warn("кадр с камеры не прочитан")
				connected = false
			}
			select {
			case <-m.done:
				return
			case <-time.After(readRetry):
			}
			continue
		}
		if !connected {
			m.log.Info("чтение кадров восстановлено")
			connected = true
		}

		frame, err := m.canonical(src)
		if err != nil {
			m.log.Errorf("ошибка преобразования кадра: %v", err)
			continue
		}
		m.frames.Publish(frame)
	}
}

// Зеркальное отражение и поворот кадра к канонической ориентации
func (m *Camera) canonical(src gocv.Mat) (*model.Frame, error) {
	now := time.Now()

	flipped := gocv.NewMat()
	defer func() { _ = flipped.Close() }()
	gocv.Flip(src, &flipped, m.flipCode)

	rotated := gocv.NewMat()
	defer func() { _ = rotated.Close() }()
	gocv.WarpAffine(flipped, &rotated, m.rotation, m.size)

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	gocv.CvtColor(rotated, &gray, gocv.ColorBGRToGray)

	color, err := rotated.ToImage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	grayImage, err := gray.ToImage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	grayFrame, ok := grayImage.(*image.Gray)
	if !ok {
		grayFrame = model.ToGray(grayImage)
	}
	return model.NewFrame(now, color, grayFrame), nil
}
