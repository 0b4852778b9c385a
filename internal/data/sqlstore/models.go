package sqlstore

import "time"

// UserRow maps the users table.
type UserRow struct {
	UserID  string `gorm:"primaryKey;size:128"`
	Email   string `gorm:"uniqueIndex;size:320;not null"`
	Name    string `gorm:"size:256"`
	Picture string `gorm:"type:text"`
}

func (UserRow) TableName() string { return "users" }

// APIKeyRow maps the api_keys table.
type APIKeyRow struct {
	APIKey    string    `gorm:"primaryKey;size:128"`
	UserID    string    `gorm:"index;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	User      UserRow   `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
}

func (APIKeyRow) TableName() string { return "api_keys" }

// MessagingTokenRow maps the messaging_tokens table.
type MessagingTokenRow struct {
	Token     string    `gorm:"primaryKey;size:512"`
	UserID    string    `gorm:"index;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	User      UserRow   `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
}

func (MessagingTokenRow) TableName() string { return "messaging_tokens" }

// MessageRow maps the messages table. Seq is the insertion order; SentAt is
// the message time in milliseconds.
type MessageRow struct {
	Seq         int64   `gorm:"primaryKey;autoIncrement"`
	ID          string  `gorm:"uniqueIndex;size:64;not null"`
	SenderID    string  `gorm:"index:idx_msg_pair,priority:1;size:128;not null"`
	RecipientID string  `gorm:"index:idx_msg_pair,priority:2;index;size:128;not null"`
	MessageType string  `gorm:"size:32;not null"`
	Payload     string  `gorm:"type:text;not null"`
	SentAt      int64   `gorm:"index:idx_msg_pair,priority:3;not null"`
	Sender      UserRow `gorm:"foreignKey:SenderID;references:UserID"`
	Recipient   UserRow `gorm:"foreignKey:RecipientID;references:UserID"`
}

func (MessageRow) TableName() string { return "messages" }
