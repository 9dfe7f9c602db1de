package repository

import (
	"context"
	"errors"
	"time"

	"deafauth/internal/domain"
)

var (
	// ErrNotFound is returned when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Create when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines credential store operations for User records.
//
// Implementations must make Create's uniqueness check and insert atomic, and must
// return copies so callers never share mutable state with the store.
type UserRepository interface {
	Init(ctx context.Context) error
	// Create assigns a new ID to user, stores it, and returns the stored record
	// without its password hash.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// FindByEmail returns the full record, password hash included.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// RecordLogin sets the last login time. Unknown ids are ignored.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	UpdatePreferences(ctx context.Context, id string, partial domain.Preferences) (*domain.User, error)
	Count(ctx context.Context) (int, error)
}
