// Package chatrpc defines the chat.v1.ChatService gRPC contract. Messages
// are plain Go structs carried by the "json" codec registered in this
// package; there is no protobuf schema.
package chatrpc

import "github.com/PaulBabatuyi/relaychat/internal/data"

type AuthenticateRequest struct {
	MessagingToken string `json:"messagingToken"`
	AuthToken      string `json:"authToken"`
}

type AuthenticateResponse struct {
	APIKey    string `json:"apiKey"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"`
}

type SendMessageRequest struct {
	RecipientEmail string `json:"recipientEmail"`
	MessageType    string `json:"messageType"`
	MessageData    string `json:"messageData"`
}

type SendMessageResponse struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

type GetChatsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Chat is one entry of a chat list.
type Chat struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Picture         string `json:"picture"`
	LastMessageTime int64  `json:"last_message_time"`
}

type GetChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type GetMessagesRequest struct {
	RecipientEmail string `json:"recipientEmail"`
	Limit          int    `json:"limit,omitempty"`
}

// Message is a stored message as seen by the caller.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	MessageType string `json:"message_type"`
	Message     string `json:"message"`
	Time        int64  `json:"time"`
	IsSent      bool   `json:"is_sent"`
}

type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type GetUserRequest struct {
	UserEmail string `json:"userEmail"`
}

type GetUserResponse struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// FromChats converts service chat summaries to their wire form.
func FromChats(in []data.ChatSummary) []Chat {
	out := make([]Chat, 0, len(in))
	for _, c := range in {
		out = append(out, Chat{
			UserID:          c.UserID,
			Name:            c.Name,
			Email:           c.Email,
			Picture:         c.Picture,
			LastMessageTime: c.LastMessageTime,
		})
	}
	return out
}

// FromMessages converts annotated messages to their wire form.
func FromMessages(in []data.MessageView) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, Message{
			ID:          m.ID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			MessageType: string(m.Type),
			Message:     string(m.Payload),
			Time:        m.Timestamp,
			IsSent:      m.IsSent,
		})
	}
	return out
}
