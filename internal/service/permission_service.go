// Package service provides the chat core's business logic: permissions,
// mentions, moderation commands, presence, and message broadcast.
package service

import (
	"context"

	"combox/internal/models"
	"combox/internal/repository"
)

// PermissionService resolves a member's effective permission set and answers
// role-mention authorization.
type PermissionService struct {
	memberRepo repository.MemberRepository
	roleRepo   repository.RoleRepository
}

// NewPermissionService returns a new PermissionService.
func NewPermissionService(memberRepo repository.MemberRepository, roleRepo repository.RoleRepository) *PermissionService {
	return &PermissionService{
		memberRepo: memberRepo,
		roleRepo:   roleRepo,
	}
}

// EffectivePermissions returns the member's permission set: the full key set
// for owners and admins, otherwise the union over every assigned role.
// Missing membership yields an empty set.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID, roomID uint) (models.PermissionSet, error) {
	member, err := s.memberRepo.GetMember(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return models.PermissionSet{}, nil
	}
	if member.IsModerator() {
		return models.FullPermissionSet(), nil
	}

	roleIDs, err := s.roleRepo.GetUserRoleIDs(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return models.PermissionSet{}, nil
	}

	roles, err := s.roleRepo.GetRolesByIDs(ctx, roomID, roleIDs)
	if err != nil {
		return nil, err
	}

	permissions := models.PermissionSet{}
	for _, role := range roles {
		permissions.Union(role.Permissions())
	}
	return permissions, nil
}

// HasPermission reports whether the member holds the permission key.
// Owners and admins always do; an unknown key is never held.
func (s *PermissionService) HasPermission(ctx context.Context, userID, roomID uint, key models.PermissionKey) (bool, error) {
	if !models.FullPermissionSet().Has(key) {
		return false, nil
	}
	member, err := s.memberRepo.GetMember(ctx, userID, roomID)
	if err != nil {
		return false, err
	}
	if member == nil {
		return false, nil
	}
	if member.IsModerator() {
		return true, nil
	}
	permissions, err := s.EffectivePermissions(ctx, userID, roomID)
	if err != nil {
		return false, err
	}
	return permissions.Has(key), nil
}

// CanMentionRole reports whether the member may @mention the target role:
// owners/admins always, roles flagged mentionable-by-everyone always, and
// otherwise only when a mention edge exists from one of the member's roles.
func (s *PermissionService) CanMentionRole(ctx context.Context, userID, roomID uint, target *models.Role) (bool, error) {
	member, err := s.memberRepo.GetMember(ctx, userID, roomID)
	if err != nil {
		return false, err
	}
	if member == nil {
		return false, nil
	}
	if member.IsModerator() {
		return true, nil
	}
	if target.CanBeMentionedByEveryone {
		return true, nil
	}

	sourceRoleIDs, err := s.roleRepo.GetUserRoleIDs(ctx, userID, roomID)
	if err != nil {
		return false, err
	}
	if len(sourceRoleIDs) == 0 {
		return false, nil
	}
	return s.roleRepo.MentionEdgeExists(ctx, roomID, target.ID, sourceRoleIDs)
}

// EnsureDefaultRoles idempotently creates the system everyone and admin roles
// for a room. An existing admin row with an empty permission list is
// back-filled to the full key set. Creation is an upsert keyed on
// (room, mention tag), so concurrent calls are safe.
func (s *PermissionService) EnsureDefaultRoles(ctx context.Context, roomID uint) (*models.Role, *models.Role, error) {
	everyone, err := s.roleRepo.GetRoleByTag(ctx, roomID, models.RoleTagEveryone)
	if err != nil {
		return nil, nil, err
	}
	if everyone == nil {
		create := &models.Role{
			RoomID:          roomID,
			Name:            models.RoleTagEveryone,
			MentionTag:      models.RoleTagEveryone,
			IsSystem:        true,
			PermissionsJSON: "[]",
		}
		if err := s.roleRepo.CreateRole(ctx, create); err != nil {
			return nil, nil, err
		}
		// Re-read: a concurrent creator may have won the upsert.
		if everyone, err = s.roleRepo.GetRoleByTag(ctx, roomID, models.RoleTagEveryone); err != nil {
			return nil, nil, err
		}
	}

	fullSet, err := models.FullPermissionSet().MarshalJSON()
	if err != nil {
		return nil, nil, err
	}

	admin, err := s.roleRepo.GetRoleByTag(ctx, roomID, models.RoleTagAdmin)
	if err != nil {
		return nil, nil, err
	}
	if admin == nil {
		create := &models.Role{
			RoomID:          roomID,
			Name:            models.RoleTagAdmin,
			MentionTag:      models.RoleTagAdmin,
			IsSystem:        true,
			PermissionsJSON: string(fullSet),
		}
		if err := s.roleRepo.CreateRole(ctx, create); err != nil {
			return nil, nil, err
		}
		if admin, err = s.roleRepo.GetRoleByTag(ctx, roomID, models.RoleTagAdmin); err != nil {
			return nil, nil, err
		}
	} else if len(admin.Permissions()) == 0 {
		admin.PermissionsJSON = string(fullSet)
		if err := s.roleRepo.UpdateRole(ctx, admin); err != nil {
			return nil, nil, err
		}
	}

	return everyone, admin, nil
}

// EnsureUserDefaultRoles links a member to the everyone role, and to the
// admin role when their coarse role is owner or admin. A non-member is a
// no-op.
func (s *PermissionService) EnsureUserDefaultRoles(ctx context.Context, userID, roomID uint) error {
	member, err := s.memberRepo.GetMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if member == nil {
		return nil
	}

	everyone, admin, err := s.EnsureDefaultRoles(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.roleRepo.LinkMemberRole(ctx, userID, roomID, everyone.ID); err != nil {
		return err
	}
	if member.IsModerator() {
		return s.roleRepo.LinkMemberRole(ctx, userID, roomID, admin.ID)
	}
	return nil
}
