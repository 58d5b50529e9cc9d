package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// RoomType defines how a room behaves.
type RoomType string

const (
	// RoomTypeGroup is a regular multi-channel chat space.
	RoomTypeGroup RoomType = "group"
	// RoomTypeDM is a two-person direct-message room.
	RoomTypeDM RoomType = "dm"
	// RoomTypeBroadcast restricts posting to owners and admins.
	RoomTypeBroadcast RoomType = "broadcast"
)

// Room is a top-level chat space containing channels and memberships.
type Room struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:120;not null" json:"name"`
	Type      RoomType       `gorm:"type:varchar(20);not null;default:'group'" json:"type"`
	Avatar    string         `json:"avatar"`
	OwnerID   uint           `gorm:"index" json:"owner_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Channels []Channel `gorm:"foreignKey:RoomID" json:"channels,omitempty"`
}

// TableName specifies the table name for GORM.
func (Room) TableName() string {
	return "rooms"
}

// Channel is a sub-space within a room where messages are posted.
type Channel struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	RoomID uint   `gorm:"not null;index" json:"room_id"`
	Name   string `gorm:"size:120;not null" json:"name"`

	// WriterRoleIDs is a serialized JSON list of role ids allowed to post.
	// Empty means the channel is unrestricted.
	WriterRoleIDs string `gorm:"type:text;default:''" json:"writer_role_ids"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for GORM.
func (Channel) TableName() string {
	return "channels"
}

// WriterRoles parses the serialized writer-role list. A malformed value is
// treated the same as an empty one: no restriction.
func (c *Channel) WriterRoles() []uint {
	if c.WriterRoleIDs == "" {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(c.WriterRoleIDs), &ids); err != nil {
		return nil
	}
	return ids
}
