package detection

import (
	"image"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Pipeline последовательный поиск лица, глаз и носа на кадре. Инициализируется через NewPipeline.
// Не хранит состояния между кадрами
type Pipeline struct {
	log *logrus.Entry

	face service.Cascade
	eye  service.Cascade
	nose service.Cascade

	// Область поиска глаз
	eyeGate image.Rectangle
}

// ConfigPipeline конфигурация Pipeline
type ConfigPipeline struct {
	Log *logrus.Logger
	// Область поиска глаз. По умолчанию model.EyeGateRegion
	EyeGate image.Rectangle
}

// NewPipeline конструктор Pipeline. Каскад nose может быть nil, тогда поиск носа не выполняется
// (вариант для регистрации лиц)
func NewPipeline(face, eye, nose service.Cascade, config *ConfigPipeline) (*Pipeline, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if face == nil {
		return nil, errors.New("не передан каскад лица")
	}
	if eye == nil {
		return nil, errors.New("не передан каскад глаз")
	}

	pipeline := Pipeline{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "detection",
			"scope":  "controller",
		}),
		face:    face,
		eye:     eye,
		nose:    nose,
		eyeGate: model.EyeGateRegion,
	}
	if !config.EyeGate.Empty() {
		pipeline.eyeGate = config.EyeGate
	}
	return &pipeline, nil
}

// Detect поиск лица, затем глаз внутри области глаз, затем носа в нижней половине лица.
// Каждый следующий шаг выполняется только при успехе предыдущего
func (m *Pipeline) Detect(frame *model.Frame) model.DetectionResult {
	result := m.DetectFaceEyes(frame)
	if !result.EyeFound || m.nose == nil {
		return result
	}
	noses := m.nose.DetectMultiScale(frame.Gray(), model.LowerHalf(*result.FaceBox))
	result.NoseFound = len(noses) > 0
	m.log.Debugf("лицо %v, нос найден: %t", *result.FaceBox, result.NoseFound)
	return result
}

// DetectFaceEyes поиск лица и глаз без поиска носа
func (m *Pipeline) DetectFaceEyes(frame *model.Frame) model.DetectionResult {
	gray := frame.Gray()
	faces := m.face.DetectMultiScale(gray, gray.Bounds())
	box, ok := PickFace(faces, gray.Bounds())
	if !ok {
		return model.DetectionResult{}
	}
	if len(faces) > 1 {
		m.log.Debugf("найдено лиц: %d, выбрано %v", len(faces), box)
	}

	// Глаза ищутся только в фиксированной области, а не в прямоугольнике лица
	eyes := m.eye.DetectMultiScale(gray, m.eyeGate)
	return model.DetectionResult{
		FaceBox:  &box,
		EyeFound: len(eyes) > 0,
	}
}

// PickFace выбор одного лица из найденных: наибольшее по площади, при равенстве - ближайшее
// к центру кадра, при равенстве - первое в порядке детектора
func PickFace(faces []image.Rectangle, bounds image.Rectangle) (image.Rectangle, bool) {
	if len(faces) == 0 {
		return image.Rectangle{}, false
	}
	center := image.Pt((bounds.Min.X+bounds.Max.X)/2, (bounds.Min.Y+bounds.Max.Y)/2)
	best := faces[0]
	for _, face := range faces[1:] {
		area, bestArea := face.Dx()*face.Dy(), best.Dx()*best.Dy()
		switch {
		case area > bestArea:
			best = face
		case area == bestArea && distance2(face, center) < distance2(best, center):
			best = face
		}
	}
	return best, true
}

// Квадрат расстояния от центра прямоугольника до точки
func distance2(rect image.Rectangle, p image.Point) int {
	dx := (rect.Min.X+rect.Max.X)/2 - p.X
	dy := (rect.Min.Y+rect.Max.Y)/2 - p.Y
	return dx*dx + dy*dy
}
