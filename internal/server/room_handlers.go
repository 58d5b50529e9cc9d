package server

import (
	"fmt"
	"strconv"
	"time"

	"combox/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const inviteTTL = 24 * time.Hour

// GetRoomChannels handles GET /api/rooms/:id/channels
func (s *Server) GetRoomChannels(c *fiber.Ctx) error {
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	member, err := s.memberRepo.GetMember(c.UserContext(), currentUserID(c), roomID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if member == nil {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("You are not a member of this room"))
	}

	channels, err := s.roomRepo.GetRoomChannels(c.UserContext(), roomID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(channels)
}

// GetRoomMembers handles GET /api/rooms/:id/members
func (s *Server) GetRoomMembers(c *fiber.Ctx) error {
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	member, err := s.memberRepo.GetMember(c.UserContext(), currentUserID(c), roomID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if member == nil {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("You are not a member of this room"))
	}

	members, err := s.memberRepo.GetRoomMembers(c.UserContext(), roomID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(members)
}

// CreateInvite handles POST /api/rooms/:id/invites. The token lives in Redis
// until its TTL and can be consumed by any number of users.
func (s *Server) CreateInvite(c *fiber.Ctx) error {
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("invite store unavailable")))
	}

	userID := currentUserID(c)
	allowed, err := s.permissionService.HasPermission(c.UserContext(), userID, roomID, models.PermInviteMembers)
	if err != nil {
		return respondServiceError(c, err)
	}
	if !allowed {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("You do not have permission to invite members"))
	}

	token := uuid.NewString()
	key := fmt.Sprintf("invite:%s", token)
	if err := s.redis.Set(c.Context(), key, strconv.FormatUint(uint64(roomID), 10), inviteTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":      token,
		"expires_in": int(inviteTTL.Seconds()),
	})
}

// JoinByInvite handles POST /api/invites/:token/join
func (s *Server) JoinByInvite(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" || s.redis == nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Invite", token))
	}

	key := fmt.Sprintf("invite:%s", token)
	roomIDStr, err := s.redis.Get(c.Context(), key).Result()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Invite", token))
	}
	roomID64, err := strconv.ParseUint(roomIDStr, 10, 32)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Invite", token))
	}
	roomID := uint(roomID64)
	userID := currentUserID(c)

	// An active ban blocks joining through any invite.
	ban, err := s.memberRepo.GetBan(c.UserContext(), roomID, userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if ban != nil && ban.ActiveAt(time.Now()) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("You are banned from this room"))
	}

	existing, err := s.memberRepo.GetMember(c.UserContext(), userID, roomID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if existing == nil {
		member := &models.Member{
			UserID: userID,
			RoomID: roomID,
			Role:   models.MemberRoleMember,
		}
		if err := s.memberRepo.CreateMember(c.UserContext(), member); err != nil {
			return respondServiceError(c, err)
		}
	}

	if _, _, err := s.permissionService.EnsureDefaultRoles(c.UserContext(), roomID); err != nil {
		return respondServiceError(c, err)
	}
	if err := s.permissionService.EnsureUserDefaultRoles(c.UserContext(), userID, roomID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"room_id": roomID})
}
