package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventRecord событие прохода или отказа в проходе
type EventRecord struct {
	UID      string
	CreateAt time.Time
	// Опознанная личность (nil при отказе)
	IdentityID *uint
	// Средняя температура
	Temperature *float64
	// Время распознавания в секундах
	RecognitionDuration *float64
	// Время замера температуры в секундах
	GaugeDuration *float64
	// Отказ из-за маски
	Mask bool
	// Личность (заполняется при чтении лога)
	Identity *Identity
}

// IsAccess событие разрешённого прохода
func (m EventRecord) IsAccess() bool {
	return m.IdentityID != nil
}

// NewAccessEvent событие прохода опознанной личности. temperature может быть nil, если
// не было ни одного замера
func NewAccessEvent(at time.Time, identityID uint, temperature *float64, recognition, gauge float64) EventRecord {
	return EventRecord{
		UID:                 newUID(at),
		CreateAt:            at,
		IdentityID:          &identityID,
		Temperature:         temperature,
		RecognitionDuration: &recognition,
		GaugeDuration:       &gauge,
	}
}

// NewDenialEvent событие отказа в проходе. mask - отказ из-за маски
func NewDenialEvent(at time.Time, mask bool) EventRecord {
	return EventRecord{
		UID:      newUID(at),
		CreateAt: at,
		Mask:     mask,
	}
}

func newUID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.Monotonic(rand.Reader, 0)).String()
}
