// Package apperror provides the coded error type shared by the auth domain,
// its use cases and the presentation layer.
package apperror

import "errors"

// Code is a stable, machine-readable error code exposed to API clients.
type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeEmailExists        Code = "EMAIL_EXISTS"
	CodeUsernameExists     Code = "USERNAME_EXISTS"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodePasswordMismatch   Code = "PASSWORD_MISMATCH"
	CodeInvalidEmail       Code = "INVALID_EMAIL"
	CodeInvalidUser        Code = "INVALID_USER"
	CodeTokenInvalid       Code = "INVALID_TOKEN"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeInternal           Code = "INTERNAL"
)

var (
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid email or password")
	ErrUserNotFound       = New(CodeUserNotFound, "user not found")
	ErrAccountLocked      = New(CodeAccountLocked, "account is locked due to multiple failed attempts")
	ErrAccountInactive    = New(CodeAccountInactive, "account is inactive")
	ErrEmailExists        = New(CodeEmailExists, "email already exists")
	ErrUsernameExists     = New(CodeUsernameExists, "username already exists")
	ErrPasswordMismatch   = New(CodePasswordMismatch, "passwords do not match")
	ErrTokenInvalid       = New(CodeTokenInvalid, "invalid or expired token")
	ErrInternal           = New(CodeInternal, "internal error")
)

// Error is the domain error type. Message is safe to show to callers; Cause
// is kept for logs and is never rendered.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Internal hides cause behind the generic internal error.
func Internal(cause error) *Error {
	return Wrap(CodeInternal, ErrInternal.Message, cause)
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
