package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsGuest      bool      `json:"is_guest"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the public projection of a user shown to other users.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
