package entity

import (
	"regexp"
	"strings"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
)

var (
	// ErrInvalidEmail indicates an address that does not match the email grammar.
	ErrInvalidEmail = apperror.New(apperror.CodeInvalidEmail, "invalid email address")

	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Email is a validated email address. Comparisons use Normalized.
type Email struct {
	value string
}

// NewEmail trims and validates raw.
func NewEmail(raw string) (Email, error) {
	v := strings.TrimSpace(raw)
	if !emailPattern.MatchString(v) {
		return Email{}, ErrInvalidEmail
	}
	return Email{value: v}, nil
}

func (e Email) String() string { return e.value }

// Normalized is the lower-cased form used for uniqueness and lookups.
func (e Email) Normalized() string { return strings.ToLower(e.value) }

// IsZero reports whether e was never set.
func (e Email) IsZero() bool { return e.value == "" }

// NormalizeEmail lower-cases and trims raw without validating it. Repositories
// use it for case-insensitive lookups.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
