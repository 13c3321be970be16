package logger

import (
	"io"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateMaxSize    = 30 // MB
	RotateLocalTime  = true
	RotateMaxAge     = 365 // Дней
	RotateMaxBackups = 10  // Колличество файлов
	RotateCompress   = true
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Config конфигурация лога
type Config struct {
	File    string
	Level   logrus.Level
	Console bool
}

// Get быстрый конфиг на консоль
func Get(level logrus.Level) *logrus.Logger {
	return GetWithConfig(Config{
		File:    "",
		Level:   level,
		Console: true,
	})
}

// GetWithConfig лоигрование с конфигурацией
func GetWithConfig(config Config) *logrus.Logger {
	once.Do(func() {
		log := logrus.New()
		log.Level = config.Level
		log.Formatter = &logrus.TextFormatter{
			DisableColors:   false,
			TimestampFormat: "2006.01.02 15:04:05",
		}
		if config.Console || config.File == "" {
			log.Out = os.Stdout
		} else {
			log.Out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   config.File,
				MaxSize:    RotateMaxSize, // MB
				MaxAge:     RotateMaxAge,  // Day
				MaxBackups: RotateMaxBackups,
				LocalTime:  RotateLocalTime,
				Compress:   RotateCompress,
			})
		}
		log.AddHook(LogrusContextHook{})
		log.Infof("----------===== начало записи в лог %s =====----------", time.Now().Format("2006.01.02 15:04:05"))
		logger = log
	})
	return logger
}

// Discard логгер, ничего не пишущий. Используется, когда логгер в конфигурации не передан
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}
