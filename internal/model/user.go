package model

import (
	"time"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 4

// User is an account. PasswordHash is never serialized.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Username     string    `gorm:"size:80;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	IsApproved   bool      `gorm:"not null;default:false" json:"is_approved"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false" json:"created_at"`

	Conversations []Conversation `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Credentials is the body of login and register requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// AuthCheckResponse reports the current session state.
type AuthCheckResponse struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
	IsAdmin       *bool `json:"is_admin,omitempty"`
}

// ListUsersResponse is returned to admins.
type ListUsersResponse struct {
	Success bool   `json:"success"`
	Users   []User `json:"users"`
}

// StatusResponse is the generic {success, message} acknowledgement.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
