package model

import "time"

// TemperatureReading одиночный откалиброванный замер температуры
type TemperatureReading struct {
	CreateAt time.Time
	Value    float64
}

// RecognitionOutcome результат сопоставления лица с обученной моделью
type RecognitionOutcome struct {
	// Идентификатор личности. Имеет смысл только при Matched
	IdentityID uint
	Matched    bool
	// Расстояние до ближайшего образца (меньше - похожее)
	Distance float64
}
