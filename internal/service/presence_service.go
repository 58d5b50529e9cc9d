package service

import (
	"context"
	"time"

	"combox/internal/models"
	"combox/internal/notifications"
	"combox/internal/repository"
)

// PresenceService updates a user's status on connect/disconnect, respecting
// the hide preference, and fans status changes out to every channel of every
// room the user belongs to.
type PresenceService struct {
	userRepo    repository.UserRepository
	roomRepo    repository.RoomRepository
	pub         notifications.Publisher
	isConnected func(userID uint) bool
	now         func() time.Time
}

// NewPresenceService returns a new PresenceService. isConnected reports
// whether the user currently holds at least one live connection.
func NewPresenceService(
	userRepo repository.UserRepository,
	roomRepo repository.RoomRepository,
	pub notifications.Publisher,
	isConnected func(userID uint) bool,
) *PresenceService {
	return &PresenceService{
		userRepo:    userRepo,
		roomRepo:    roomRepo,
		pub:         pub,
		isConnected: isConnected,
		now:         time.Now,
	}
}

// HandleConnect marks the user online (or hidden) and clears last_seen.
func (s *PresenceService) HandleConnect(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	status := models.PresenceOnline
	if user.HideStatus {
		status = models.PresenceHidden
	}
	if err := s.userRepo.UpdatePresence(ctx, userID, status, nil); err != nil {
		return err
	}

	return s.fanOut(ctx, user, status, nil)
}

// HandleDisconnect marks the user offline (or hidden) and stamps last_seen.
func (s *PresenceService) HandleDisconnect(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	status := models.PresenceOffline
	if user.HideStatus {
		status = models.PresenceHidden
	}
	lastSeen := s.now()
	if err := s.userRepo.UpdatePresence(ctx, userID, status, &lastSeen); err != nil {
		return err
	}

	return s.fanOut(ctx, user, status, &lastSeen)
}

// SetHidePreference flips the hide preference. Hiding takes effect
// immediately regardless of connection state; un-hiding restores online for
// a connected user unless an away status has to be preserved.
func (s *PresenceService) SetHidePreference(ctx context.Context, userID uint, hide bool) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.HideStatus = hide

	status := user.PresenceStatus
	switch {
	case hide:
		status = models.PresenceHidden
	case s.isConnected != nil && s.isConnected(userID):
		if user.PresenceStatus != models.PresenceAway {
			status = models.PresenceOnline
		}
	default:
		status = models.PresenceOffline
	}
	user.PresenceStatus = status

	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	return s.fanOut(ctx, user, status, user.LastSeen)
}

// fanOut pushes a presence update to every channel in every room the user
// belongs to. The cost is bounded by the user's own membership count.
func (s *PresenceService) fanOut(ctx context.Context, user *models.User, status models.PresenceStatus, lastSeen *time.Time) error {
	roomIDs, err := s.roomRepo.GetUserRoomIDs(ctx, user.ID)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"status":   status,
	}
	if lastSeen != nil {
		payload["last_seen"] = lastSeen
	}
	event := notifications.Event{Type: notifications.EventPresenceUpdated, Payload: payload}

	for _, roomID := range roomIDs {
		channels, err := s.roomRepo.GetRoomChannels(ctx, roomID)
		if err != nil {
			return err
		}
		for _, channel := range channels {
			s.pub.ToChannel(channel.ID, event)
		}
	}
	return nil
}
