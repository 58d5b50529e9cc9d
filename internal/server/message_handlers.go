package server

import (
	"combox/internal/models"
	"combox/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	FileURL     string `json:"file_url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ReplyToID   *uint  `json:"reply_to_id"`
}

// PostMessage handles POST /api/rooms/:roomId/channels/:channelId/messages.
// It is the HTTP twin of the send_message socket event.
func (s *Server) PostMessage(c *fiber.Ctx) error {
	roomID, err := parseIDParam(c, "roomId")
	if err != nil {
		return respondServiceError(c, err)
	}
	channelID, err := parseIDParam(c, "channelId")
	if err != nil {
		return respondServiceError(c, err)
	}

	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Content == "" && req.FileURL == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Message content is required"))
	}

	outcome, err := s.messageService.Post(c.UserContext(), service.PostMessageInput{
		UserID:      currentUserID(c),
		RoomID:      roomID,
		ChannelID:   channelID,
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		ReplyToID:   req.ReplyToID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	if outcome.Command != nil {
		return c.JSON(fiber.Map{"command_result": outcome.Command})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  outcome.Message,
		"mentions": outcome.Mentions,
	})
}

// EditMessage handles PUT /api/messages/:id
func (s *Server) EditMessage(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, err := s.messageService.EditMessage(c.UserContext(), currentUserID(c), messageID, req.Content)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(message)
}

// DeleteMessage handles DELETE /api/messages/:id
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	if err := s.messageService.DeleteMessage(c.UserContext(), currentUserID(c), messageID, s.permissionService); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleReaction handles POST /api/messages/:id/reactions
func (s *Server) ToggleReaction(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.messageService.ToggleReaction(c.UserContext(), currentUserID(c), messageID, req.Emoji); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkChannelRead handles POST /api/channels/:id/read
func (s *Server) MarkChannelRead(c *fiber.Ctx) error {
	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	var req struct {
		MessageID uint `json:"message_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.MessageID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("message_id is required"))
	}

	if err := s.messageService.MarkRead(c.UserContext(), currentUserID(c), channelID, req.MessageID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
