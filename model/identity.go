package model

import "time"

// Роли зарегистрированных личностей
const (
	RoleAdmin = "Administrador"
	RoleUser  = "Usuario"
)

// Identity зарегистрированная личность
type Identity struct {
	ID       uint
	CreateAt *time.Time
	UpdateAt *time.Time
	Dni      string `conform:"trim" validate:"required"`
	Name     string `conform:"trim" validate:"required"`
	Role     string `conform:"trim" validate:"required,oneof=Administrador Usuario"`
	// Хэш пароля (bcrypt)
	Credential string
	// Колличество сохранённых изображений лица
	Faces int
}
