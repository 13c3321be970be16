package store

import (
	"image"
	"io"
	"time"

	"github.com/kirsrus/facegate/model"
)

// UserStore репозиторий зарегистрированных личностей
//
//go:generate mockery --dir . --name UserStore --output ./mocks
type UserStore interface {
	// Проверяет, что ошибка err обозначает, что записи не найдены
	IsNotFound(err error) bool

	// Получает личность по идентификатору. Отсутствие проверяется через IsNotFound
	FindByID(id uint) (*model.Identity, error)

	// Добавляет личность. Пароль сохраняется в виде хэша
	AddUser(identity model.Identity, password string) (*model.Identity, error)

	// Увеличивает на единицу колличество сохранённых изображений лица
	IncrementFaces(id uint) error
}

// EventStore журнал событий прохода
//
//go:generate mockery --dir . --name EventStore --output ./mocks
type EventStore interface {
	// Добавляет событие. Повторная запись события с тем же UID не создаёт дубликата
	Append(record model.EventRecord) error

	// Возвращает события за период [from, to)
	Events(from, to time.Time) ([]model.EventRecord, error)

	// Удаляет события старше before. Возвращает колличество удалённых
	Clean(before time.Time) (int64, error)
}

// FaceStore хранилище миниатюр лиц, по директории на личность
//
//go:generate mockery --dir . --name FaceStore --output ./mocks
type FaceStore interface {
	// Сохраняет миниатюру лица и возвращает имя созданного файла
	SaveFace(identityID uint, at time.Time, thumb image.Image) (string, error)

	// Содержимое последней сохранённой миниатюры
	LatestFace(identityID uint) ([]byte, error)

	// Обходит все миниатюры всех личностей
	Walk(fn func(identityID uint, path string) error) error
}

// ModelStore хранилище артефакта обученной модели
//
//go:generate mockery --dir . --name ModelStore --output ./mocks
type ModelStore interface {
	// Открывает текущий артефакт
	Open() (io.ReadCloser, error)

	// Записывает новый артефакт во временный файл и атомарно заменяет им текущий
	Publish(write func(w io.Writer) error) error
}
