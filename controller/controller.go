package controller

import (
	"context"

	"github.com/kirsrus/facegate/model"
)

// AttendanceCtl контроллер контроля доступа
//
//go:generate mockery --dir . --name AttendanceCtl --output ./mocks
type AttendanceCtl interface {
	// Выполняет цикл опроса до отмены ctx или вызова Close
	Serve(ctx context.Context) error
	// Отменяет запланированные шаги, освобождает камеру и датчик, сбрасывает сессию
	Close() error
	// Текущее состояние
	Snapshot() model.Snapshot
}

// EnrollmentCtl контроллер регистрации лиц
//
//go:generate mockery --dir . --name EnrollmentCtl --output ./mocks
type EnrollmentCtl interface {
	// Выполняет захват до отмены ctx, вызова Close или сохранения заданного числа лиц
	Serve(ctx context.Context) error
	Close() error
	// Колличество сохранённых в текущем сеансе лиц
	Captured() int
}
