package server

import (
	"combox/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userRepo.GetByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// UpdatePresencePreference handles PUT /api/users/me/presence. Flipping the
// hide flag takes effect immediately and fans out to the user's rooms.
func (s *Server) UpdatePresencePreference(c *fiber.Ctx) error {
	var req struct {
		HideStatus *bool `json:"hide_status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.HideStatus == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("hide_status is required"))
	}

	if err := s.presenceService.SetHidePreference(c.UserContext(), currentUserID(c), *req.HideStatus); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
