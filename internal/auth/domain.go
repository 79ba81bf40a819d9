package auth

import "time"

// User represents an authenticated user account. The account itself belongs
// to the identity subsystem; authorization only references it by name.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
