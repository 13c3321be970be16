package validator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/leebenson/conform"
)

var (
	valid Validator
	once  sync.Once
)

// Validator валидатор структур с предварительной корректировкой строк. Инициализируется через NewValidator
type Validator struct {
	validator *validator.Validate
}

// NewValidator конструктор валидатора Validator
func NewValidator() *Validator {
	v := Validator{
		validator: validator.New(),
	}
	if err := v.validator.RegisterValidation("existfile", validatorExistFile); err != nil {
		panic(err)
	}
	return &v
}

// Validate валидация структуры. Ошибки валидации собираются в одно сообщение
func (m *Validator) Validate(i interface{}) error {
	return describe(m.validator.Struct(i))
}

// ValidateWithConform корректировка строковых полей по тегам conform и валидация структуры
func (m *Validator) ValidateWithConform(i interface{}) error {
	if err := conform.Strings(i); err != nil {
		return errors.Annotate(err, "ошибка корректировки")
	}
	return m.Validate(i)
}

// Var валидация одиночного значения по правилу tag
func (m *Validator) Var(field interface{}, tag string) error {
	return describe(m.validator.Var(field, tag))
}

// describe переводит ошибки валидатора в сообщение вида "поле Name: required"
func describe(err error) error {
	if err == nil {
		return nil
	}
	fields, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Trace(err)
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		rule := field.Tag()
		if field.Param() != "" {
			rule += "=" + field.Param()
		}
		name := field.Field()
		if name == "" {
			name = "значение"
		}
		parts = append(parts, fmt.Sprintf("поле %s: %s", name, rule))
	}
	return errors.Errorf("некорректные данные: %s", strings.Join(parts, "; "))
}

// Get единожды инициализирует и возвращает валидатор
func Get() *Validator {
	once.Do(func() {
		valid = *NewValidator()
	})
	return &valid
}
