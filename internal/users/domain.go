package users

import (
	"errors"
	"time"
)

// User represents a user account for management.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	RoleIDs   []int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate indicates an email collision.
	ErrDuplicate = errors.New("email already registered")
	// ErrValidation indicates invalid user input.
	ErrValidation = errors.New("invalid user input")
)
