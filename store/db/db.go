package db

import (
	"context"
	"strconv"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/validator"

	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

const (
	cacheDuration = 10 * time.Minute
	cacheCleared  = time.Hour
)

// Db обращение к базе данных личностей и событий. Инициируется через NewDb
type Db struct {
	ctx       context.Context
	log       *logrus.Entry
	db        *gorm.DB
	validator *validator.Validator

	userCache *cache.Cache
}

// ConfigDb конфигурация класса Db
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
}

// NewDb конструктор класса Db
func NewDb(ctx context.Context, config *ConfigDb) (*Db, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.DbFile == "" {
		return nil, errors.New("в конфигурации не указан файл базы данных")
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(sqlite.Open(config.DbFile), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к файлу БД")
	}
	err = conn.AutoMigrate(User{}, Event{})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
		}),
		validator: validator.Get(),
		db:        conn,

		userCache: cache.New(cacheDuration, cacheCleared),
	}
	return &db, nil
}

// Close закрывает соединение с базой
func (m *Db) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(sqlDB.Close())
}

// IsNotFound проверяет, что ошибка err обозначает, что записи не найдены
func (m *Db) IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return cause != nil && cause.Error() == gorm.ErrRecordNotFound.Error()
}

// FindByID получает личность по идентификатору. Отсутствие личности в БД проверяется через IsNotFound
func (m *Db) FindByID(id uint) (*model.Identity, error) {
	if id == 0 {
		return nil, errors.New("передан некорректный идентификатор 0")
	}
	key := strconv.Itoa(int(id))
	if cached, ok := m.userCache.Get(key); ok {
		identity := cached.(model.Identity)
		return &identity, nil
	}

	var user User
	err := m.db.Where("id = ?", id).Take(&user).Error
	if err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	identity := user.ToIdentity()
	m.userCache.Set(key, identity, cache.DefaultExpiration)
	return &identity, nil
}

// Users список всех личностей
func (m *Db) Users() ([]model.Identity, error) {
	rows := make([]User, 0)
	if err := m.db.Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Identity, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToIdentity())
	}
	return result, nil
}

// AddUser добавляет личность в БД. Пароль сохраняется в виде хэша bcrypt
func (m *Db) AddUser(identity model.Identity, password string) (*model.Identity, error) {
	if err := m.validator.ValidateWithConform(&identity); err != nil {
		return nil, errors.Annotate(err, "ошибка валидации")
	}
	if password == "" {
		return nil, errors.New("не задан пароль")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка хэширования пароля")
	}
	identity.Credential = string(hash)
	identity.Faces = 0

	var user User
	user.FromIdentity(identity)
	if err := m.db.Create(&user).Error; err != nil {
		return nil, errors.Annotate(err, "ошибка добавления в БД")
	}
	m.log.Infof("добавлена личность ID:%d %s", user.ID, user.Name)
	res := user.ToIdentity()
	return &res, nil
}

// CheckPassword проверяет пароль личности
func (m *Db) CheckPassword(id uint, password string) (bool, error) {
	identity, err := m.FindByID(id)
	if err != nil {
		return false, errors.Trace(err)
	}
	err = bcrypt.CompareHashAndPassword([]byte(identity.Credential), []byte(password))
	if err != nil {
		if errors.Cause(err) == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, errors.Trace(err)
	}
	return true, nil
}

// IncrementFaces увеличивает на единицу колличество сохранённых изображений лица
func (m *Db) IncrementFaces(id uint) error {
	res := m.db.Model(&User{}).Where("id = ?", id).
		UpdateColumn("face", gorm.Expr("face + ?", 1))
	if res.Error != nil {
		return errors.Trace(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	m.userCache.Delete(strconv.Itoa(int(id)))
	return nil
}

// Append добавляет событие. Повторная запись события с тем же UID игнорируется
func (m *Db) Append(record model.EventRecord) error {
	if record.UID == "" {
		return errors.New("у события не задан UID")
	}
	var event Event
	event.FromRecord(record)
	err := m.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoNothing: true,
	}).Create(&event).Error
	if err != nil {
		return errors.Annotatef(err, "ошибка записи события %s", record.UID)
	}
	return nil
}

// Events возвращает события за период [from, to) с заполненной личностью
func (m *Db) Events(from, to time.Time) ([]model.EventRecord, error) {
	rows := make([]Event, 0)
	if err := m.db.Where("created_at >= ? AND created_at < ?", from, to).Order("created_at").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.EventRecord, 0, len(rows))
	for _, v := range rows {
		record := v.ToRecord()
		if record.IdentityID != nil {
			identity, err := m.FindByID(*record.IdentityID)
			switch {
			case err == nil:
				record.Identity = identity
			case m.IsNotFound(err):
				m.log.Warnf("событие %s ссылается на отсутствующую личность ID:%d", record.UID, *record.IdentityID)
			default:
				return nil, errors.Trace(err)
			}
		}
		result = append(result, record)
	}
	return result, nil
}

// Clean удаляет события старше before. Возвращает колличество удалённых
func (m *Db) Clean(before time.Time) (int64, error) {
	res := m.db.Where("created_at < ?", before).Delete(&Event{})
	if res.Error != nil {
		return 0, errors.Trace(res.Error)
	}
	if res.RowsAffected > 0 {
		m.log.Infof("из архива удалено событий: %d", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
