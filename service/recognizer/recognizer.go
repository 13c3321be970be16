package recognizer

import (
	"image"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Расстояние, ниже которого (строго) лицо считается опознанным
	threshold = 4500.0
	thumbSize = 150
)

// Recognizer сопоставление лица с моделью собственных лиц. Инициализируется через NewRecognizer
type Recognizer struct {
	log *logrus.Entry

	model     *Eigenfaces
	threshold float64
}

// ConfigRecognizer конфигурация Recognizer
type ConfigRecognizer struct {
	Log *logrus.Logger

	// Порог расстояния
	Threshold float64
}

// NewRecognizer загружает модель из хранилища. Отсутствующий или повреждённый артефакт
// является ошибкой инициализации
func NewRecognizer(models store.ModelStore, config *ConfigRecognizer) (*Recognizer, error) {
	if models == nil {
		return nil, errors.New("не установлено хранилище модели")
	}
	r, err := models.Open()
	if err != nil {
		return nil, model.NewInitializationError("модели распознавания", err)
	}
	defer r.Close()
	eigen, err := Decode(r)
	if err != nil {
		return nil, model.NewInitializationError("модели распознавания", err)
	}
	return NewRecognizerWithModel(eigen, config)
}

// NewRecognizerWithModel конструктор Recognizer для уже загруженной модели
func NewRecognizerWithModel(eigen *Eigenfaces, config *ConfigRecognizer) (*Recognizer, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if eigen == nil {
		return nil, errors.New("не установлена модель")
	}
	if err := eigen.check(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	m := Recognizer{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "recognizer",
			"scope":  "service",
		}),
		model:     eigen,
		threshold: threshold,
	}
	if config.Threshold != 0 {
		m.threshold = config.Threshold
	}
	m.log.Infof("загружена модель: %d образцов, %d компонент, миниатюра %dx%d",
		len(eigen.Labels), len(eigen.Components), eigen.Size, eigen.Size)
	return &m, nil
}

// Predict сопоставляет лицо с моделью
func (m *Recognizer) Predict(face *image.Gray) (model.RecognitionOutcome, error) {
	if face == nil || face.Bounds().Empty() {
		return model.RecognitionOutcome{}, errors.New("пустое изображение лица")
	}
	label, distance, err := m.model.Nearest(face)
	if err != nil {
		return model.RecognitionOutcome{}, errors.Trace(err)
	}
	outcome := model.RecognitionOutcome{Distance: distance}
	if m.Accept(distance) {
		outcome.Matched = true
		outcome.IdentityID = label
	}
	m.log.Debugf("ближайший образец %d, расстояние %.2f, опознан %v", label, distance, outcome.Matched)
	return outcome, nil
}

// Accept расстояние достаточно мало для опознания
func (m *Recognizer) Accept(distance float64) bool {
	return distance < m.threshold
}
