package model

import "image"

// DetectionResult результат поиска лица, глаз и носа на одном кадре. Создаётся заново
// для каждого кадра
type DetectionResult struct {
	// Прямоугольник лица. nil, если лицо не найдено
	FaceBox   *image.Rectangle
	EyeFound  bool
	NoseFound bool
}

// HasFace на кадре найдено лицо
func (m DetectionResult) HasFace() bool {
	return m.FaceBox != nil
}

// MaskSignal лицо и глаза найдены, а нос нет
func (m DetectionResult) MaskSignal() bool {
	return m.HasFace() && m.EyeFound && !m.NoseFound
}

// Recognizable кадр пригоден для распознавания личности
func (m DetectionResult) Recognizable() bool {
	return m.HasFace() && m.EyeFound && m.NoseFound
}
