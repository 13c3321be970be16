package model

import (
	"fmt"

	"github.com/juju/errors"
)

// ErrNoFrame кадр не получен за отведённое время
var ErrNoFrame = errors.New("кадр с камеры не получен")

// InitializationError неустранимая ошибка инициализации оборудования или ресурсов
type InitializationError struct {
	Component string
	Err       error
}

// Error описание ошибки
func (m *InitializationError) Error() string {
	return fmt.Sprintf("ошибка инициализации %s: %v", m.Component, m.Err)
}

// NewInitializationError оборачивает err в InitializationError
func NewInitializationError(component string, err error) error {
	return errors.Trace(&InitializationError{Component: component, Err: err})
}

// IsInitialization ошибка является ошибкой инициализации
func IsInitialization(err error) bool {
	_, ok := errors.Cause(err).(*InitializationError)
	return ok
}

// IsNoFrame ошибка означает отсутствие кадра
func IsNoFrame(err error) bool {
	return errors.Cause(err) == ErrNoFrame
}
