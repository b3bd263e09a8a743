// Package memory provides in-process adapters used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-auth/internal/domain/repository"
)

// UserRepository keeps users in a map guarded by a mutex. It honours the same
// contract as the Postgres adapter, including optimistic versioning.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
	now   func() time.Time
}

var _ repo.UserRepository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[string]*entity.User{}, now: time.Now}
}

// Save stores u and updates its ID and Version in place.
func (r *UserRepository) Save(_ context.Context, u *entity.User) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.ID != "" {
		cur, ok := r.users[u.ID]
		if !ok {
			return nil, repo.ErrNotFound
		}
		if cur.Version != u.Version {
			return nil, repo.ErrVersionConflict
		}
	}
	if err := r.checkUnique(u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
		u.Version = 1
	} else {
		u.Version++
	}
	r.users[u.ID] = stored(u)
	return u, nil
}

func (r *UserRepository) checkUnique(u *entity.User) error {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if other.Email.Normalized() == u.Email.Normalized() {
			return repo.ErrDuplicateEmail
		}
		if other.Username.String() == u.Username.String() {
			return repo.ErrDuplicateUsername
		}
	}
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	want := entity.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email.Normalized() == want {
			return u.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username.String() == username {
			return u.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	return exists(err)
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return exists(err)
}

func (r *UserRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	return true, nil
}

// AddRefreshToken adds token to the user's set. Membership changes bump the
// version so a stale aggregate cannot overwrite them.
func (r *UserRepository) AddRefreshToken(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repo.ErrNotFound
	}
	if !u.HasRefreshToken(token) {
		u.AddRefreshToken(token, r.now())
		u.Version++
	}
	return nil
}

func (r *UserRepository) RemoveRefreshToken(_ context.Context, userID, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	if !u.RemoveRefreshToken(token, r.now()) {
		return false, nil
	}
	u.Version++
	return true, nil
}

func (r *UserRepository) HasRefreshToken(_ context.Context, userID, token string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	return ok && u.HasRefreshToken(token), nil
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repo.ErrNotFound
	}
	now := r.now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	u.Version++
	return nil
}

// stored returns a copy of u without pending events.
func stored(u *entity.User) *entity.User {
	c := u.Clone()
	c.PullEvents()
	return c
}

func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	}
	return false, err
}
