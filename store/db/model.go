package db

import (
	"time"

	"github.com/kirsrus/facegate/model"
)

type (
	// GormModelUnscoped модель эквивалент gorm.Model без сохранения удалений
	GormModelUnscoped struct {
		ID        uint `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// User зарегистрированная личность
	User struct {
		GormModelUnscoped
		Dni  string `gorm:"uniqueIndex"`
		Name string
		Role string
		// Хэш пароля
		Pass string
		// Колличество сохранённых изображений лица
		Face int
	}
)

// TableName имя таблицы
func (User) TableName() string {
	return "users"
}

// ToIdentity маппинг данных в структуру model.Identity
func (m User) ToIdentity() model.Identity {
	return model.Identity{
		ID:         m.ID,
		CreateAt:   &m.CreatedAt,
		UpdateAt:   &m.UpdatedAt,
		Dni:        m.Dni,
		Name:       m.Name,
		Role:       m.Role,
		Credential: m.Pass,
		Faces:      m.Face,
	}
}

// FromIdentity заполняет текущую структуру из структуры model.Identity
func (m *User) FromIdentity(identity model.Identity) {
	*m = User{
		GormModelUnscoped: GormModelUnscoped{ID: identity.ID},
		Dni:               identity.Dni,
		Name:              identity.Name,
		Role:              identity.Role,
		Pass:              identity.Credential,
		Face:              identity.Faces,
	}
}

type (
	// Event событие прохода или отказа
	Event struct {
		ID        uint      `gorm:"primaryKey"`
		UID       string    `gorm:"uniqueIndex;size:26"`
		CreatedAt time.Time `gorm:"index"`
		// Опознанная личность (NULL при отказе)
		UserID *uint `gorm:"index"`
		// Средняя температура
		Temperature *float64
		// Время распознавания в секундах
		Detect *float64
		// Время замера температуры в секундах
		Gauge *float64
		// Отказ из-за маски
		Mask bool
	}
)

// TableName имя таблицы
func (Event) TableName() string {
	return "events"
}

// ToRecord маппинг данных в структуру model.EventRecord
func (m Event) ToRecord() model.EventRecord {
	return model.EventRecord{
		UID:                 m.UID,
		CreateAt:            m.CreatedAt,
		IdentityID:          m.UserID,
		Temperature:         m.Temperature,
		RecognitionDuration: m.Detect,
		GaugeDuration:       m.Gauge,
		Mask:                m.Mask,
	}
}

// FromRecord заполняет текущую структуру из структуры model.EventRecord
func (m *Event) FromRecord(record model.EventRecord) {
	*m = Event{
		UID:         record.UID,
		CreatedAt:   record.CreateAt,
		UserID:      record.IdentityID,
		Temperature: record.Temperature,
		Detect:      record.RecognitionDuration,
		Gauge:       record.GaugeDuration,
		Mask:        record.Mask,
	}
}
