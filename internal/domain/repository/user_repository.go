package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
)

var (
	// ErrNotFound is returned by lookups when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrVersionConflict is returned by Save when the stored version moved on
	// since the user was loaded.
	ErrVersionConflict = errors.New("user was modified concurrently")
	// ErrDuplicateEmail is returned by Save when another user holds the email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername is returned by Save when another user holds the username.
	ErrDuplicateUsername = errors.New("username already registered")
)

// UserRepository defines the persistence contract for users and their refresh
// token membership set.
//
// Save inserts users without an ID (assigning one) and updates the rest using
// the Version field for optimistic locking. Email lookups ignore case.
type UserRepository interface {
	Save(ctx context.Context, u *entity.User) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)

	AddRefreshToken(ctx context.Context, userID, token string) error
	RemoveRefreshToken(ctx context.Context, userID, token string) (bool, error)
	HasRefreshToken(ctx context.Context, userID, token string) (bool, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}
