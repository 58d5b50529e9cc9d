package models

import (
	"time"

	"gorm.io/gorm"
)

// Message types recognized by the broadcast engine.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message is a chat message posted to a channel.
type Message struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ChannelID uint   `gorm:"not null;index" json:"channel_id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	Content   string `gorm:"type:text" json:"content"`

	MessageType string `gorm:"type:varchar(20);default:'text'" json:"message_type"`

	// File metadata is only trusted after server-side validation.
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`

	ReplyToID *uint      `gorm:"index" json:"reply_to_id,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User      *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// MessageReaction is a single emoji reaction by one user on one message.
type MessageReaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_once" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reaction_once" json:"user_id"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_reaction_once" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (MessageReaction) TableName() string {
	return "message_reactions"
}

// ReadMessage is a per-user last-read marker for a channel. Unread counts
// are message ids greater than the marker, or the full channel count when
// no marker exists.
type ReadMessage struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_read_marker" json:"user_id"`
	ChannelID         uint      `gorm:"not null;uniqueIndex:idx_read_marker" json:"channel_id"`
	LastReadMessageID uint      `gorm:"not null;default:0" json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ReadMessage) TableName() string {
	return "read_messages"
}
