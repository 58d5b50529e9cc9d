package repository

import (
	"context"
	"errors"

	"combox/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleRepository defines the interface for role, role-link and mention-edge data operations
type RoleRepository interface {
	GetRoomRoles(ctx context.Context, roomID uint) ([]models.Role, error)
	GetRoleByTag(ctx context.Context, roomID uint, tag string) (*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	UpdateRole(ctx context.Context, role *models.Role) error
	GetUserRoleIDs(ctx context.Context, userID, roomID uint) ([]uint, error)
	GetRolesByIDs(ctx context.Context, roomID uint, ids []uint) ([]models.Role, error)
	LinkMemberRole(ctx context.Context, userID, roomID, roleID uint) error
	MentionEdgeExists(ctx context.Context, roomID, targetRoleID uint, sourceRoleIDs []uint) (bool, error)
	GetRoleMemberUserIDs(ctx context.Context, roomID, roleID uint) ([]uint, error)
}

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) GetRoomRoles(ctx context.Context, roomID uint) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&roles).Error
	return roles, err
}

func (r *roleRepository) GetRoleByTag(ctx context.Context, roomID uint, tag string) (*models.Role, error) {
	var role models.Role
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND mention_tag = ?", roomID, tag).
		First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) CreateRole(ctx context.Context, role *models.Role) error {
	// Upsert keyed on (room, mention_tag) so concurrent ensure calls are safe.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "mention_tag"}},
			DoNothing: true,
		}).
		Create(role).Error
}

func (r *roleRepository) UpdateRole(ctx context.Context, role *models.Role) error {
	return r.db.WithContext(ctx).Save(role).Error
}

func (r *roleRepository) GetUserRoleIDs(ctx context.Context, userID, roomID uint) ([]uint, error) {
	var roleIDs []uint
	err := r.db.WithContext(ctx).
		Model(&models.MemberRole{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Pluck("role_id", &roleIDs).Error
	return roleIDs, err
}

func (r *roleRepository) GetRolesByIDs(ctx context.Context, roomID uint, ids []uint) ([]models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var roles []models.Role
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND id IN ?", roomID, ids).
		Find(&roles).Error
	return roles, err
}

func (r *roleRepository) LinkMemberRole(ctx context.Context, userID, roomID, roleID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.MemberRole{UserID: userID, RoomID: roomID, RoleID: roleID}).Error
}

func (r *roleRepository) MentionEdgeExists(ctx context.Context, roomID, targetRoleID uint, sourceRoleIDs []uint) (bool, error) {
	if len(sourceRoleIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoleMentionPermission{}).
		Where("room_id = ? AND target_role_id = ? AND source_role_id IN ?", roomID, targetRoleID, sourceRoleIDs).
		Count(&count).Error
	return count > 0, err
}

func (r *roleRepository) GetRoleMemberUserIDs(ctx context.Context, roomID, roleID uint) ([]uint, error) {
	var userIDs []uint
	err := r.db.WithContext(ctx).
		Model(&models.MemberRole{}).
		Distinct("user_id").
		Where("room_id = ? AND role_id = ?", roomID, roleID).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
