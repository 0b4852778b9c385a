package data

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// EncodePayload is the transit encoding used for every stored payload.
func EncodePayload(p []byte) string {
	return base64.StdEncoding.EncodeToString(p)
}

// DecodePayload reverses EncodePayload.
func DecodePayload(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// NewMessageID returns a time-ordered UUIDv7 string.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
