package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Repository.Create for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidInput is returned when registration fields fail validation.
	ErrInvalidInput = errors.New("invalid user input")
)

// Role grants access to parts of the API.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// User is a storefront account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Role         Role
	// TelegramChatID is empty until the user links a Telegram chat.
	TelegramChatID string
	CreatedAt      time.Time
}

// Repository defines storage operations for accounts. Emails are stored
// normalized (lower case, trimmed).
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetTelegramChatID(ctx context.Context, id, chatID string) error
}
