package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Phone    string
	// Role defaults to RoleCustomer. Only trusted callers (the seed tool)
	// set it.
	Role Role
}

// Service manages accounts.
type Service struct {
	repo Repository
	cost int

	now   func() time.Time
	newID func() string
}

// NewService creates a user Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.Wrap(ErrInvalidInput, "email is malformed")
	}
	if len(req.Password) < minPasswordLen {
		return nil, errors.Wrapf(ErrInvalidInput, "password must be at least %d characters", minPasswordLen)
	}
	role := req.Role
	if role == "" {
		role = RoleCustomer
	}
	if !role.Valid() {
		return nil, errors.Wrapf(ErrInvalidInput, "unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		ID:           s.newID(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// LinkTelegram stores the chat that receives the user's notifications. An
// empty chatID unlinks it.
func (s *Service) LinkTelegram(ctx context.Context, id, chatID string) (*User, error) {
	if err := s.repo.SetTelegramChatID(ctx, id, strings.TrimSpace(chatID)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
