package server

import (
	"errors"

	"combox/internal/models"
	"combox/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SendFriendRequest handles POST /api/friends/requests/:userId
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	receiverID, err := parseIDParam(c, "userId")
	if err != nil {
		return respondServiceError(c, err)
	}
	senderID := currentUserID(c)

	if receiverID == senderID {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("You cannot send a friend request to yourself"))
	}

	receiver, err := s.userRepo.GetByID(c.UserContext(), receiverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", receiverID))
		}
		return respondServiceError(c, err)
	}

	pending, err := s.friendRepo.GetPendingRequest(c.UserContext(), senderID, receiverID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if pending != nil {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewValidationError("A friend request is already pending"))
	}

	sender, err := s.userRepo.GetByID(c.UserContext(), senderID)
	if err != nil {
		return respondServiceError(c, err)
	}

	request := &models.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestPending,
	}
	if err := s.friendRepo.CreateRequest(c.UserContext(), request); err != nil {
		return respondServiceError(c, err)
	}

	s.publishUserEvent(receiver.ID, notifications.EventFriendRequestReceived, map[string]interface{}{
		"request_id":      request.ID,
		"sender_id":       sender.ID,
		"sender_username": sender.Username,
	})

	return c.Status(fiber.StatusCreated).JSON(request)
}

// GetPendingFriendRequests handles GET /api/friends/requests
func (s *Server) GetPendingFriendRequests(c *fiber.Ctx) error {
	requests, err := s.friendRepo.GetPendingRequests(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(requests)
}

// AcceptFriendRequest handles POST /api/friends/requests/:requestId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	return s.resolveFriendRequest(c, models.FriendRequestAccepted)
}

// RejectFriendRequest handles POST /api/friends/requests/:requestId/reject
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	return s.resolveFriendRequest(c, models.FriendRequestRejected)
}

// resolveFriendRequest applies an accept/reject decision by the receiver and
// notifies the sender.
func (s *Server) resolveFriendRequest(c *fiber.Ctx, status string) error {
	requestID, err := parseIDParam(c, "requestId")
	if err != nil {
		return respondServiceError(c, err)
	}

	request, err := s.friendRepo.GetRequest(c.UserContext(), requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Friend request", requestID))
		}
		return respondServiceError(c, err)
	}
	if request.ReceiverID != currentUserID(c) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Only the receiver can resolve this request"))
	}
	if request.Status != models.FriendRequestPending {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewValidationError("Friend request is already resolved"))
	}

	if err := s.friendRepo.UpdateStatus(c.UserContext(), requestID, status); err != nil {
		return respondServiceError(c, err)
	}

	receiverName := ""
	if request.Receiver != nil {
		receiverName = request.Receiver.Username
	}
	s.publishUserEvent(request.SenderID, notifications.EventFriendRequestUpdated, map[string]interface{}{
		"request_id":        request.ID,
		"status":            status,
		"receiver_id":       request.ReceiverID,
		"receiver_username": receiverName,
	})

	return c.JSON(fiber.Map{"status": status})
}
