package validator

import (
	"os"

	"github.com/go-playground/validator/v10"
)

// Валидатор существующего обычного файла
func validatorExistFile(fl validator.FieldLevel) bool {
	path, ok := fl.Field().Interface().(string)
	if !ok || path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
