package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// PermissionKey identifies a single grantable room permission. The set of
// keys is closed; anything else found in storage is ignored.
type PermissionKey string

const (
	PermManageServer   PermissionKey = "manage_server"
	PermManageRoles    PermissionKey = "manage_roles"
	PermManageChannels PermissionKey = "manage_channels"
	PermInviteMembers  PermissionKey = "invite_members"
	PermDeleteServer   PermissionKey = "delete_server"
	PermDeleteMessages PermissionKey = "delete_messages"
	PermKickMembers    PermissionKey = "kick_members"
	PermBanMembers     PermissionKey = "ban_members"
	PermMuteMembers    PermissionKey = "mute_members"
)

// AllPermissionKeys lists every valid permission key in a stable order.
var AllPermissionKeys = []PermissionKey{
	PermManageServer,
	PermManageRoles,
	PermManageChannels,
	PermInviteMembers,
	PermDeleteServer,
	PermDeleteMessages,
	PermKickMembers,
	PermBanMembers,
	PermMuteMembers,
}

// PermissionSet is a set of permission keys.
type PermissionSet map[PermissionKey]struct{}

// FullPermissionSet returns a set containing every permission key.
func FullPermissionSet() PermissionSet {
	set := make(PermissionSet, len(AllPermissionKeys))
	for _, key := range AllPermissionKeys {
		set[key] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the key.
func (s PermissionSet) Has(key PermissionKey) bool {
	_, ok := s[key]
	return ok
}

// Union adds every key from other into the set.
func (s PermissionSet) Union(other PermissionSet) {
	for key := range other {
		s[key] = struct{}{}
	}
}

// MarshalJSON encodes the set as a sorted JSON list of keys.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	keys := make([]PermissionKey, 0, len(s))
	for _, key := range AllPermissionKeys {
		if s.Has(key) {
			keys = append(keys, key)
		}
	}
	return json.Marshal(keys)
}

// ParsePermissions decodes a serialized permission list. Malformed input or
// unknown keys resolve to an empty set, never an error: old rows carry
// arbitrary junk and a parse failure must not block permission checks.
func ParsePermissions(raw string) PermissionSet {
	set := make(PermissionSet)
	if raw == "" {
		return set
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return set
	}
	valid := FullPermissionSet()
	for _, key := range keys {
		if valid.Has(PermissionKey(key)) {
			set[PermissionKey(key)] = struct{}{}
		}
	}
	return set
}

var roleTagInvalidRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// NormalizeRoleTag converts a role name into its mention tag: lowercased,
// spaces to underscores, invalid characters stripped, at most 60 characters.
func NormalizeRoleTag(name string) string {
	value := strings.ToLower(strings.TrimSpace(name))
	value = strings.ReplaceAll(value, " ", "_")
	value = roleTagInvalidRe.ReplaceAllString(value, "")
	if len(value) > 60 {
		value = value[:60]
	}
	return value
}

// System role tags every room carries.
const (
	RoleTagEveryone = "everyone"
	RoleTagAdmin    = "admin"
)

// Role is a room-scoped named permission and mention grouping.
type Role struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RoomID     uint   `gorm:"not null;uniqueIndex:idx_roles_room_tag" json:"room_id"`
	Name       string `gorm:"size:60;not null" json:"name"`
	MentionTag string `gorm:"size:60;not null;uniqueIndex:idx_roles_room_tag" json:"mention_tag"`
	IsSystem   bool   `gorm:"default:false" json:"is_system"`

	// CanBeMentionedByEveryone bypasses the per-role mention permission edges.
	CanBeMentionedByEveryone bool `gorm:"default:false" json:"can_be_mentioned_by_everyone"`

	// PermissionsJSON is the serialized permission list; see ParsePermissions.
	PermissionsJSON string `gorm:"type:text;default:'[]'" json:"permissions_json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Role) TableName() string {
	return "roles"
}

// Permissions parses the role's stored permission list.
func (r *Role) Permissions() PermissionSet {
	return ParsePermissions(r.PermissionsJSON)
}

// RoleMentionPermission is a directed edge granting members holding the
// source role the right to @mention the target role.
type RoleMentionPermission struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	RoomID       uint `gorm:"not null;index" json:"room_id"`
	SourceRoleID uint `gorm:"not null;uniqueIndex:idx_role_mention_edge" json:"source_role_id"`
	TargetRoleID uint `gorm:"not null;uniqueIndex:idx_role_mention_edge" json:"target_role_id"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (RoleMentionPermission) TableName() string {
	return "role_mention_permissions"
}
