// Package data defines the records, the storage contract and the pure
// conversation logic shared by every storage backend.
package data

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for absent users, and for api keys that are
	// absent or expired.
	ErrNotFound = errors.New("not found")
	// ErrUnknownUser is returned by AppendMessage when the sender or
	// recipient is not in the directory.
	ErrUnknownUser = errors.New("unknown user")
	// ErrEmailTaken is returned by UpsertUser when another user id already
	// owns the email.
	ErrEmailTaken = errors.New("email already registered to another user")
	// ErrInvalidUserID is returned by UpsertUser and AppendMessage for an
	// empty user id or one that contains a NUL byte.
	ErrInvalidUserID = errors.New("invalid user id")
)

// CheckUserID rejects ids no backend can store unambiguously. NUL is the
// component separator of composite keys.
func CheckUserID(id string) error {
	if id == "" || strings.IndexByte(id, 0) >= 0 {
		return ErrInvalidUserID
	}
	return nil
}

// Users is the user directory. UpsertUser is last-write-wins on every
// field except UserID.
type Users interface {
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Credentials holds api keys and push tokens. Lookups treat expired
// entries as absent; SweepExpired only reclaims space.
type Credentials interface {
	PutAPIKey(ctx context.Context, c Credential) error
	UserIDByAPIKey(ctx context.Context, key string, now time.Time) (string, error)
	PutPushToken(ctx context.Context, t PushToken) error
	PushTokens(ctx context.Context, userID string, now time.Time) ([]string, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Conversations is the message log and the two views derived from it.
type Conversations interface {
	// AppendMessage stores m and returns its id. An empty m.ID is filled
	// with a fresh one.
	AppendMessage(ctx context.Context, m *Message) (string, error)
	// ListChatPartners returns at most limit partners of userID, most
	// recently active first.
	ListChatPartners(ctx context.Context, userID string, limit int) ([]ChatPartner, error)
	// MessagesBetween returns the limit most recent messages between the
	// two users, oldest first, annotated for userID.
	MessagesBetween(ctx context.Context, userID, otherID string, limit int) ([]MessageView, error)
}

// Store is a complete backend.
type Store interface {
	Users
	Credentials
	Conversations
	Close(ctx context.Context) error
}
