package entity

import (
	"regexp"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
)

var (
	// ErrUsernameLength indicates a username outside 3-50 characters.
	ErrUsernameLength = apperror.New(apperror.CodeInvalidUser, "username must be between 3 and 50 characters")
	// ErrUsernameCharset indicates a username with characters other than letters, digits and underscores.
	ErrUsernameCharset = apperror.New(apperror.CodeInvalidUser, "username can only contain letters, numbers and underscores")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Username is a validated account handle.
type Username struct {
	value string
}

// NewUsername validates raw.
func NewUsername(raw string) (Username, error) {
	if n := len(raw); n < UsernameMinLength || n > UsernameMaxLength {
		return Username{}, ErrUsernameLength
	}
	if !usernamePattern.MatchString(raw) {
		return Username{}, ErrUsernameCharset
	}
	return Username{value: raw}, nil
}

func (u Username) String() string { return u.value }
