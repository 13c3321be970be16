package service

import (
	"context"
	"image"
	"time"

	"github.com/kirsrus/facegate/model"
)

// FrameSource камера. Выдаёт кадры в канонической ориентации
//
//go:generate mockery --dir . --name FrameSource --output ./mocks
type FrameSource interface {
	// Ожидает очередной кадр. Если кадр не получен за отведённое время, возвращает model.ErrNoFrame
	Next(ctx context.Context) (*model.Frame, error)
	// Освобождает устройство
	Close() error
}

// TemperatureSensor бесконтактный датчик температуры
//
//go:generate mockery --dir . --name TemperatureSensor --output ./mocks
type TemperatureSensor interface {
	// Мгновенное показание датчика в градусах Цельсия (без калибровки)
	Read() (float64, error)
	// Освобождает шину датчика
	Close() error
}

// Cascade каскадный детектор объектов
//
//go:generate mockery --dir . --name Cascade --output ./mocks
type Cascade interface {
	// Многомасштабный поиск объектов в области roi изображения img. Прямоугольники
	// возвращаются в координатах img в порядке, выданном детектором
	DetectMultiScale(img *image.Gray, roi image.Rectangle) []image.Rectangle
	Close() error
}

// Recognizer сопоставление лица с обученной моделью
//
//go:generate mockery --dir . --name Recognizer --output ./mocks
type Recognizer interface {
	// Сопоставляет изображение лица (любого размера) с моделью
	Predict(face *image.Gray) (model.RecognitionOutcome, error)
}

// AudioSvc звуковое оповещение
//
//go:generate mockery --dir . --name AudioSvc --output ./mocks
type AudioSvc interface {
	// Проигрывает сигнал, не дожидаясь окончания
	Play(model.Cue) error
}

// DisplaySvc отображение информации для субъекта у терминала
//
//go:generate mockery --dir . --name DisplaySvc --output ./mocks
type DisplaySvc interface {
	// Подсказка над изображением. Пустая строка скрывает подсказку
	Caption(text string)
	// Имя опознанной личности. Пустая строка скрывает имя
	Name(text string)
	// Текущее время
	Clock(t time.Time)
	// Текущий кадр камеры
	Frame(frame *model.Frame)
	// Результат попытки прохода
	Outcome(notice model.OutcomeNotice)
}

// WebSvc киоск терминала и HTTP API
//
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	DisplaySvc
	// Обслуживает HTTP-запросы до отмены ctx
	Serve(ctx context.Context) error
}
