package cascade

import (
	"image"
	"sync"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/validator"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	scaleFactor  = 1.3
	minNeighbors = 5
)

// Cascade каскадный классификатор Хаара. Инициализируется через NewCascade
type Cascade struct {
	log *logrus.Entry

	mu         sync.Mutex
	classifier gocv.CascadeClassifier

	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

// ConfigCascade конфигурация Cascade
type ConfigCascade struct {
	Log *logrus.Logger

	// Название для журнала ("лицо", "глаза", "нос")
	Name string
	// XML файл каскада
	Path string `validate:"required,existfile"`

	ScaleFactor  float64
	MinNeighbors int
	// Минимальная сторона объекта в пикселях
	MinSize int
}

// NewCascade конструктор Cascade. Отсутствующий или повреждённый файл каскада - ошибка инициализации
func NewCascade(config *ConfigCascade) (*Cascade, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if err := validator.Get().Validate(config); err != nil {
		return nil, model.NewInitializationError("каскада "+config.Name, err)
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(config.Path) {
		_ = classifier.Close()
		return nil, model.NewInitializationError("каскада "+config.Name, errors.Errorf("не удалось загрузить %s", config.Path))
	}

	cascade := Cascade{
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "cascade",
			"scope":   "service",
			"cascade": config.Name,
		}),
		classifier:   classifier,
		scaleFactor:  scaleFactor,
		minNeighbors: minNeighbors,
	}
	if config.ScaleFactor != 0 {
		cascade.scaleFactor = config.ScaleFactor
	}
	if config.MinNeighbors != 0 {
		cascade.minNeighbors = config.MinNeighbors
	}
	if config.MinSize > 0 {
		cascade.minSize = image.Pt(config.MinSize, config.MinSize)
	}
	return &cascade, nil
}

// DetectMultiScale поиск объектов в области roi. Прямоугольники возвращаются в координатах img
func (m *Cascade) DetectMultiScale(img *image.Gray, roi image.Rectangle) []image.Rectangle {
	roi = roi.Intersect(img.Bounds())
	if roi.Empty() {
		return nil
	}
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		m.log.Errorf("ошибка преобразования изображения: %v", err)
		return nil
	}
	defer func() { _ = mat.Close() }()
	region := mat.Region(roi.Sub(img.Bounds().Min))
	defer func() { _ = region.Close() }()

	m.mu.Lock()
	found := m.classifier.DetectMultiScaleWithParams(region, m.scaleFactor, m.minNeighbors, 0, m.minSize, image.Point{})
	m.mu.Unlock()

	return Translate(found, roi.Min)
}

// Close освобождает классификатор
func (m *Cascade) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Trace(m.classifier.Close())
}

// Translate перевод прямоугольников из координат области в координаты изображения
func Translate(rects []image.Rectangle, offset image.Point) []image.Rectangle {
	if len(rects) == 0 {
		return nil
	}
	result := make([]image.Rectangle, len(rects))
	for i, v := range rects {
		result[i] = v.Add(offset)
	}
	return result
}
