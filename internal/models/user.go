// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// PresenceStatus is a user's reported connection state.
type PresenceStatus string

const (
	// PresenceOnline indicates at least one active connection.
	PresenceOnline PresenceStatus = "online"
	// PresenceOffline indicates no active connections.
	PresenceOffline PresenceStatus = "offline"
	// PresenceHidden masks the real state when the user prefers to hide it.
	PresenceHidden PresenceStatus = "hidden"
	// PresenceAway is set by idle detection outside this core and must
	// survive presence transitions that do not explicitly override it.
	PresenceAway PresenceStatus = "away"
)

// User represents a registered account.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"unique;not null" json:"username"`
	Email       string         `gorm:"unique;not null" json:"email"`
	Password    string         `gorm:"not null" json:"-"`
	Avatar      string         `json:"avatar"`
	Bio         string         `json:"bio"`
	IsSuperuser bool           `gorm:"default:false" json:"is_superuser"`

	// Presence fields. If HideStatus is set the reported status is always
	// "hidden" regardless of connection state.
	PresenceStatus PresenceStatus `gorm:"type:varchar(16);default:'offline'" json:"presence_status"`
	HideStatus     bool           `gorm:"default:false" json:"hide_status"`
	LastSeen       *time.Time     `json:"last_seen,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// ReportedStatus applies the hide preference on top of the stored status.
func (u *User) ReportedStatus() PresenceStatus {
	if u.HideStatus {
		return PresenceHidden
	}
	return u.PresenceStatus
}
