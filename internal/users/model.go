package users

import (
	"time"

	"clinic-crm/internal/access"
)

type User struct {
	ID           string      `bson:"_id,omitempty" json:"id"`
	Name         string      `bson:"name" json:"name"`
	Email        string      `bson:"email" json:"email"`
	Role         access.Role `bson:"role" json:"role"`
	Phone        string      `bson:"phone,omitempty" json:"phone,omitempty"`
	AuthID       string      `bson:"authId,omitempty" json:"authId,omitempty"`
	PasswordHash string      `bson:"passwordHash" json:"-"`
	CreatedAt    time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time   `bson:"updatedAt" json:"updatedAt"`
}

func (u User) Identity() access.Identity {
	return access.Identity{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
	}
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	SetupKey string `json:"setupKey"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Role     string `json:"role" validate:"required,role"`
}

type RoleUpdateRequest struct {
	Role string `json:"role" validate:"required,role"`
}

type PasswordUpdateRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type ProfileUpdateRequest struct {
	Name  string `json:"name" validate:"omitempty,max=120"`
	Phone string `json:"phone" validate:"omitempty,phone"`
}
