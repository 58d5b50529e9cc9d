package models

import "time"

// RoomBan stores room-scoped bans for moderation. One row per (room, user);
// a nil BannedUntil is a permanent ban. Expired rows are lazily deleted the
// next time the ban is checked.
type RoomBan struct {
	RoomID         uint       `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BannedByUserID uint       `gorm:"not null;index" json:"banned_by_user_id"`
	Reason         string     `gorm:"type:text;default:''" json:"reason"`
	BannedUntil    *time.Time `json:"banned_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	User         *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BannedByUser *User `gorm:"foreignKey:BannedByUserID" json:"banned_by_user,omitempty"`
}

// TableName specifies the table name for GORM.
func (RoomBan) TableName() string {
	return "room_bans"
}

// ActiveAt reports whether the ban still applies at the given instant.
func (b *RoomBan) ActiveAt(now time.Time) bool {
	return b.BannedUntil == nil || now.Before(*b.BannedUntil)
}
