package entity

import (
	"sort"
	"time"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
)

// MaxFailedLoginAttempts is the number of consecutive failures that locks an
// account.
const MaxFailedLoginAttempts = 5

// State is the lockout state of an account.
type State string

const (
	StateActiveUnlocked State = "active_unlocked"
	StateActiveLocked   State = "active_locked"
	StateInactive       State = "inactive"
)

// User is the aggregate root for authentication.
//
// PasswordHash holds a self-describing hash (argon2id or bcrypt) and must never
// leave the application layer. Mutations go through the transition methods so
// the lockout counter, the refresh token set and the pending events stay
// consistent; repositories may set the exported fields directly when loading.
type User struct {
	ID                  string
	Email               Email
	Username            Username
	PasswordHash        string
	IsActive            bool
	IsVerified          bool
	FailedLoginAttempts int
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	// Version is the optimistic concurrency token maintained by the repository.
	Version int64

	refreshTokens map[string]struct{}
	events        []event.Event
}

// NewUser builds an active, unverified user and records UserRegistered.
func NewUser(email, username, passwordHash string, now time.Time) (*User, error) {
	e, err := NewEmail(email)
	if err != nil {
		return nil, err
	}
	un, err := NewUsername(username)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	u := &User{
		Email:         e,
		Username:      un,
		PasswordHash:  passwordHash,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
		refreshTokens: map[string]struct{}{},
	}
	u.record(event.UserRegistered, now, map[string]string{
		"email":    e.String(),
		"username": un.String(),
	})
	return u, nil
}

// IsLocked reports whether the failed attempt counter reached the threshold.
func (u *User) IsLocked() bool {
	return u.FailedLoginAttempts >= MaxFailedLoginAttempts
}

// State returns the current lockout state.
func (u *User) State() State {
	switch {
	case !u.IsActive:
		return StateInactive
	case u.IsLocked():
		return StateActiveLocked
	default:
		return StateActiveUnlocked
	}
}

// LoginSucceeded resets the counter and stamps the login time. Only valid for
// an active, unlocked account.
func (u *User) LoginSucceeded(now time.Time) error {
	switch u.State() {
	case StateInactive:
		return apperror.ErrAccountInactive
	case StateActiveLocked:
		return apperror.ErrAccountLocked
	}
	now = now.UTC()
	u.FailedLoginAttempts = 0
	u.LastLoginAt = &now
	u.UpdatedAt = now
	u.record(event.UserLoggedIn, now, nil)
	return nil
}

// LoginFailed increments the failed attempt counter. The attempt that reaches
// MaxFailedLoginAttempts locks the account.
func (u *User) LoginFailed(now time.Time) error {
	switch u.State() {
	case StateInactive:
		return apperror.ErrAccountInactive
	case StateActiveLocked:
		return apperror.ErrAccountLocked
	}
	u.FailedLoginAttempts++
	u.UpdatedAt = now.UTC()
	return nil
}

// Unlock clears the failed attempt counter.
func (u *User) Unlock(now time.Time) {
	if u.FailedLoginAttempts == 0 {
		return
	}
	u.FailedLoginAttempts = 0
	u.UpdatedAt = now.UTC()
}

// AddRefreshToken adds token to the membership set. Adding a present token is
// a no-op.
func (u *User) AddRefreshToken(token string, now time.Time) {
	if token == "" || u.HasRefreshToken(token) {
		return
	}
	if u.refreshTokens == nil {
		u.refreshTokens = map[string]struct{}{}
	}
	u.refreshTokens[token] = struct{}{}
	u.UpdatedAt = now.UTC()
}

// RemoveRefreshToken removes token and reports whether it was present.
func (u *User) RemoveRefreshToken(token string, now time.Time) bool {
	if !u.HasRefreshToken(token) {
		return false
	}
	delete(u.refreshTokens, token)
	u.UpdatedAt = now.UTC()
	return true
}

func (u *User) HasRefreshToken(token string) bool {
	_, ok := u.refreshTokens[token]
	return ok
}

// RefreshTokens returns the membership set in a stable order.
func (u *User) RefreshTokens() []string {
	out := make([]string, 0, len(u.refreshTokens))
	for t := range u.refreshTokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ClearRefreshTokens revokes every refresh token.
func (u *User) ClearRefreshTokens(now time.Time) {
	if len(u.refreshTokens) == 0 {
		return
	}
	u.refreshTokens = map[string]struct{}{}
	u.UpdatedAt = now.UTC()
}

// LoadRefreshTokens replaces the membership set without touching UpdatedAt.
// Repositories call it when hydrating a user.
func (u *User) LoadRefreshTokens(tokens []string) {
	u.refreshTokens = make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			u.refreshTokens[t] = struct{}{}
		}
	}
}

// Deactivate disables the account and revokes its refresh tokens.
func (u *User) Deactivate(now time.Time) {
	if !u.IsActive {
		return
	}
	u.IsActive = false
	u.refreshTokens = map[string]struct{}{}
	u.UpdatedAt = now.UTC()
}

// VerifyEmail marks the address as verified. Verifying twice is a no-op.
func (u *User) VerifyEmail(now time.Time) {
	if u.IsVerified {
		return
	}
	now = now.UTC()
	u.IsVerified = true
	u.UpdatedAt = now
	u.record(event.EmailVerified, now, map[string]string{"email": u.Email.String()})
}

// Logout revokes a single refresh token. An empty token revokes all of them.
func (u *User) Logout(token string, now time.Time) {
	now = now.UTC()
	if token == "" {
		u.ClearRefreshTokens(now)
	} else {
		u.RemoveRefreshToken(token, now)
	}
	u.record(event.UserLoggedOut, now, nil)
}

// ChangePassword replaces the credential and revokes all refresh tokens.
func (u *User) ChangePassword(passwordHash string, now time.Time) {
	now = now.UTC()
	u.PasswordHash = passwordHash
	u.refreshTokens = map[string]struct{}{}
	u.UpdatedAt = now
	u.record(event.PasswordChanged, now, map[string]string{"email": u.Email.String()})
}

// RehashCredential swaps the stored hash for one using current parameters.
func (u *User) RehashCredential(passwordHash string, now time.Time) {
	if passwordHash == "" || passwordHash == u.PasswordHash {
		return
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = now.UTC()
}

// PendingEvents returns the undrained events without clearing them.
func (u *User) PendingEvents() []event.Event {
	out := make([]event.Event, len(u.events))
	copy(out, u.events)
	return out
}

// PullEvents drains pending events in emission order. Events recorded before
// the user had an id are bound to the current id.
func (u *User) PullEvents() []event.Event {
	out := make([]event.Event, 0, len(u.events))
	for _, e := range u.events {
		if e.UserID == "" {
			e = e.WithUserID(u.ID)
		}
		out = append(out, e)
	}
	u.events = nil
	return out
}

// Clone returns a deep copy, pending events included.
func (u *User) Clone() *User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	c.refreshTokens = make(map[string]struct{}, len(u.refreshTokens))
	for t := range u.refreshTokens {
		c.refreshTokens[t] = struct{}{}
	}
	c.events = append([]event.Event(nil), u.events...)
	return &c
}

func (u *User) record(t event.Type, at time.Time, payload map[string]string) {
	u.events = append(u.events, event.New(t, u.ID, at, payload))
}
