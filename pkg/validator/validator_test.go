package validator

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidator_ExistFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "validator")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	file := filepath.Join(dir, "face.xml")
	if err := ioutil.WriteFile(file, []byte("<opencv_storage/>"), 0644); err != nil {
		t.Fatal(err)
	}

	type asset struct {
		Path string `conform:"trim" validate:"existfile"`
	}
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "файл существует", path: file, wantErr: false},
		{name: "пробелы обрезаются", path: "  " + file + " ", wantErr: false},
		{name: "файла нет", path: filepath.Join(dir, "nose.xml"), wantErr: true},
		{name: "директория", path: dir, wantErr: true},
		{name: "пустой путь", path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := asset{Path: tt.path}
			err := Get().ValidateWithConform(&a)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWithConform() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_Describe(t *testing.T) {
	type identity struct {
		Name string `conform:"trim" validate:"required"`
		Role string `validate:"oneof=Administrador Usuario"`
	}
	tests := []struct {
		name    string
		value   identity
		wantErr string
	}{
		{name: "корректно", value: identity{Name: "Иван", Role: "Usuario"}},
		{name: "только пробелы", value: identity{Name: "   ", Role: "Usuario"}, wantErr: "поле Name: required"},
		{name: "две ошибки", value: identity{Role: "root"}, wantErr: "поле Name: required; поле Role: oneof=Administrador Usuario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Get().ValidateWithConform(&tt.value)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateWithConform() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateWithConform() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_Var(t *testing.T) {
	if err := Get().Var(uint16(0x5A), "min=8,max=119"); err != nil {
		t.Errorf("Var() error = %v", err)
	}
	if err := Get().Var(uint16(0x80), "min=8,max=119"); err == nil {
		t.Error("Var() адрес за пределами диапазона не вернул ошибку")
	}
}
