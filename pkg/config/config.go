package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/jinzhu/configor"
	"github.com/juju/errors"
)

var (
	config Config
	once   sync.Once
)

const FileName = "config.yaml"

// Get единажды читает и возвращает конфигурацию из FileName
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath единожды читает и возвращает конфигурацию. Недоступный или некорректный
// файл завершает программу
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		loaded, err := Load(filepath)
		if err != nil {
			log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
		}
		config = *loaded
	})
	return &config
}

// Load читает конфигурацию из файла без кэширования. Незаполненные поля получают
// значения по умолчанию из тегов default
func Load(filepath string) (*Config, error) {
	if _, err := os.Stat(filepath); err != nil {
		return nil, errors.Annotate(err, "файл конфигурации недоступен")
	}
	var result Config
	loader := configor.New(&configor.Config{ErrorOnUnmatchedKeys: true})
	if err := loader.Load(&result, filepath); err != nil {
		return nil, errors.Trace(err)
	}
	if err := result.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return &result, nil
}

// Проверка значений, которые не выражаются тегами
func (m *Config) check() error {
	if m.Sensor.Address < 0x08 || m.Sensor.Address > 0x77 {
		return errors.Errorf("адрес датчика 0x%X вне диапазона шины I2C", m.Sensor.Address)
	}
	if m.Recognize.Threshold <= 0 {
		return errors.Errorf("порог распознавания должен быть положительным: %v", m.Recognize.Threshold)
	}
	if m.Attendance.PollInterval <= 0 {
		return errors.Errorf("период опроса камеры должен быть положительным: %d", m.Attendance.PollInterval)
	}
	return nil
}

// Ms перевод миллисекунд из конфигурации в time.Duration
func Ms(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}
