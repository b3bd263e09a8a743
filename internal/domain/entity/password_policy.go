package entity

import (
	"strings"
	"unicode/utf8"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
)

const PasswordMinLength = 8

// PasswordSpecialChars is the set of characters that satisfy the special
// character rule.
const PasswordSpecialChars = `!@#$%^&*(),.?":{}|<>`

var (
	ErrPasswordTooShort  = apperror.New(apperror.CodeWeakPassword, "password must be at least 8 characters long")
	ErrPasswordNoUpper   = apperror.New(apperror.CodeWeakPassword, "password must contain at least one uppercase letter")
	ErrPasswordNoLower   = apperror.New(apperror.CodeWeakPassword, "password must contain at least one lowercase letter")
	ErrPasswordNoDigit   = apperror.New(apperror.CodeWeakPassword, "password must contain at least one number")
	ErrPasswordNoSpecial = apperror.New(apperror.CodeWeakPassword, "password must contain at least one special character")
)

// ValidatePasswordStrength checks a plaintext password against the password
// policy. The plaintext is never included in the returned error.
func ValidatePasswordStrength(plain string) error {
	if utf8.RuneCountInString(plain) < PasswordMinLength {
		return ErrPasswordTooShort
	}
	var upper, lower, digit, special bool
	for _, r := range plain {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			special = true
		}
	}
	switch {
	case !upper:
		return ErrPasswordNoUpper
	case !lower:
		return ErrPasswordNoLower
	case !digit:
		return ErrPasswordNoDigit
	case !special:
		return ErrPasswordNoSpecial
	}
	return nil
}
