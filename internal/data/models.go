package data

import (
	"encoding/json"
	"time"
)

// CredentialTTL is the fixed lifetime of an issued api key and of a
// registered push token. It is deliberately not configurable.
const CredentialTTL = 24 * time.Hour

// User is the one profile record used end-to-end (directory, chat list, API).
type User struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Credential is a local api key owned by a user.
type Credential struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the key can still be used at now.
func (c Credential) Valid(now time.Time) bool { return now.Before(c.ExpiresAt) }

// PushToken is a device registration owned by a user.
type PushToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token is still a delivery target at now.
func (t PushToken) Valid(now time.Time) bool { return now.Before(t.ExpiresAt) }

// MessageType enumerates the payload kinds the service accepts.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
)

// Supported reports whether t is a type SendMessage will store.
func (t MessageType) Supported() bool {
	switch t {
	case TypeText, TypeImage:
		return true
	}
	return false
}

// Message is an immutable entry of the message log. Timestamp is in
// milliseconds since the epoch.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id"`
	Type        MessageType `json:"message_type"`
	Payload     []byte      `json:"-"`
	Timestamp   int64       `json:"time"`
}

// Partner returns the other party of m as seen by userID.
func (m *Message) Partner(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// MessageView is a Message annotated for one viewer.
type MessageView struct {
	Message
	IsSent bool `json:"is_sent"`
}

// MarshalJSON renders the payload as the "message" string clients expect.
func (v MessageView) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string      `json:"id"`
		SenderID    string      `json:"sender_id"`
		RecipientID string      `json:"recipient_id"`
		Type        MessageType `json:"message_type"`
		Message     string      `json:"message"`
		Timestamp   int64       `json:"time"`
		IsSent      bool        `json:"is_sent"`
	}{v.ID, v.SenderID, v.RecipientID, v.Type, string(v.Payload), v.Timestamp, v.IsSent})
}

// ChatPartner is what a store reports per conversation partner.
type ChatPartner struct {
	PartnerID       string
	LastMessageTime int64
}

// ChatSummary is a ChatPartner joined with the partner's current profile.
type ChatSummary struct {
	User
	LastMessageTime int64 `json:"last_message_time"`
}

// Millis converts t to the millisecond timestamps stored on messages.
func Millis(t time.Time) int64 { return t.UnixMilli() }
