// Package event defines the domain events emitted by the user aggregate.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type names a domain event variant. Values are the routing names used on the
// event bus.
type Type string

const (
	UserRegistered  Type = "user.registered"
	UserLoggedIn    Type = "user.logged_in"
	UserLoggedOut   Type = "user.logged_out"
	PasswordChanged Type = "user.password_changed"
	EmailVerified   Type = "user.email_verified"
)

// Event is an immutable record of a user state transition.
type Event struct {
	// ID uniquely identifies the event for de-duplication downstream.
	ID string `json:"id"`

	// Type is the event variant.
	Type Type `json:"type"`

	// Timestamp is the time the transition happened.
	Timestamp time.Time `json:"timestamp"`

	// UserID is the aggregate the event belongs to. Empty until the user has
	// been persisted.
	UserID string `json:"user_id"`

	// Payload carries variant specific attributes.
	Payload map[string]string `json:"payload,omitempty"`
}

// New builds an event with a fresh id. The payload is copied.
func New(t Type, userID string, at time.Time, payload map[string]string) Event {
	var p map[string]string
	if len(payload) > 0 {
		p = make(map[string]string, len(payload))
		for k, v := range payload {
			p[k] = v
		}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: at.UTC(),
		UserID:    userID,
		Payload:   p,
	}
}

// WithUserID returns a copy of e bound to userID.
func (e Event) WithUserID(userID string) Event {
	e.UserID = userID
	return e
}
