// Package push delivers data messages to devices identified by push
// tokens.
package push

import (
	"context"
	"errors"
)

// ErrNotConnected is returned when none of the target devices could be
// reached.
var ErrNotConnected = errors.New("push: no target device connected")

// Dispatcher delivers one data message to every device in tokens.
// Delivery is best-effort; callers log failures and carry on.
type Dispatcher interface {
	Send(ctx context.Context, tokens []string, data map[string]string) error
}

// AuthAck is the payload that hands a freshly issued api key to the device
// that asked for it.
func AuthAck(apiKey string) map[string]string {
	return map[string]string{"auth_ack": "true", "api_key": apiKey}
}

// NewMessage is the payload announcing a message to its recipient.
func NewMessage(messageType, message, senderName, senderEmail, senderPicture string) map[string]string {
	return map[string]string{
		"messageType":   messageType,
		"message":       message,
		"senderName":    senderName,
		"senderEmail":   senderEmail,
		"senderPicture": senderPicture,
	}
}
