package models

import "time"

// Coarse member roles, distinct from assignable Roles.
const (
	MemberRoleOwner  = "owner"
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
	// MemberRoleBanned is a legacy value still present in old rows; bans are
	// tracked in room_bans now.
	MemberRoleBanned = "banned"
)

// Member is the (user, room) membership record carrying the coarse role and
// mute state. Legacy data may hold several rows for one pair, so moderation
// always operates on the full matching set.
type Member struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index:idx_members_user_room" json:"user_id"`
	RoomID uint   `gorm:"not null;index:idx_members_user_room" json:"room_id"`
	Role   string `gorm:"type:varchar(20);not null;default:'member'" json:"role"`

	// MutedUntil marks an active mute while it is in the future. Expired
	// values are ignored at the point of use rather than swept.
	MutedUntil *time.Time `json:"muted_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Room *Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

// TableName specifies the table name for GORM.
func (Member) TableName() string {
	return "members"
}

// IsModerator reports whether the coarse role is owner or admin.
func (m *Member) IsModerator() bool {
	return m.Role == MemberRoleOwner || m.Role == MemberRoleAdmin
}

// MutedAt reports whether the member is muted at the given instant.
func (m *Member) MutedAt(now time.Time) bool {
	return m.MutedUntil != nil && now.Before(*m.MutedUntil)
}

// MemberRole links a member to an assignable role within a room.
type MemberRole struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex:idx_member_roles_link" json:"user_id"`
	RoomID uint `gorm:"not null;uniqueIndex:idx_member_roles_link" json:"room_id"`
	RoleID uint `gorm:"not null;uniqueIndex:idx_member_roles_link" json:"role_id"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (MemberRole) TableName() string {
	return "member_roles"
}
