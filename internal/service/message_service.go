package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"combox/internal/models"
	"combox/internal/notifications"
	"combox/internal/observability"
	"combox/internal/repository"

	"gorm.io/gorm"
)

// PostMessageInput is the inbound send_message payload after transport
// decoding.
type PostMessageInput struct {
	UserID      uint
	RoomID      uint
	ChannelID   uint
	Content     string
	MessageType string
	FileURL     string
	FileName    string
	FileSize    int64
	ReplyToID   *uint
}

// PostOutcome is the terminal result of a post attempt. Exactly one of
// Message (a persisted and broadcast chat message) or Command (a diverted
// moderation command) is set.
type PostOutcome struct {
	Message  *models.Message
	Mentions *MentionResult
	Command  *CommandResult
}

const (
	replySnippetLen        = 200
	notificationSnippetLen = 140
)

// MessageService validates posting eligibility, persists accepted messages
// and fans them out to channel subscribers plus per-member notifications.
type MessageService struct {
	roomRepo    repository.RoomRepository
	memberRepo  repository.MemberRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	roleRepo    repository.RoleRepository
	mentions    *MentionService
	commands    *CommandService
	media       *MediaValidator
	pub         notifications.Publisher
	now         func() time.Time
}

// NewMessageService returns a new MessageService.
func NewMessageService(
	roomRepo repository.RoomRepository,
	memberRepo repository.MemberRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	mentions *MentionService,
	commands *CommandService,
	media *MediaValidator,
	pub notifications.Publisher,
) *MessageService {
	return &MessageService{
		roomRepo:    roomRepo,
		memberRepo:  memberRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		roleRepo:    roleRepo,
		mentions:    mentions,
		commands:    commands,
		media:       media,
		pub:         pub,
		now:         time.Now,
	}
}

// Post runs the full state machine for one post attempt.
func (s *MessageService) Post(ctx context.Context, in PostMessageInput) (*PostOutcome, error) {
	room, err := s.roomRepo.GetRoom(ctx, in.RoomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Room", in.RoomID)
		}
		return nil, err
	}
	channel, err := s.roomRepo.GetChannel(ctx, in.ChannelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Channel", in.ChannelID)
		}
		return nil, err
	}
	if channel.RoomID != room.ID {
		return nil, models.NewNotFoundError("Channel", in.ChannelID)
	}

	memberships, err := s.memberRepo.GetMembers(ctx, in.UserID, room.ID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, models.NewForbiddenError("You are not a member of this room")
	}

	if err := s.checkBan(ctx, room.ID, in.UserID); err != nil {
		return nil, err
	}

	// Slash commands divert before the posting eligibility checks: a muted
	// moderator can still issue /unmute.
	if in.FileURL == "" {
		if cmd := ParseCommand(in.Content); cmd.Kind != NotACommand {
			issuer, err := s.userRepo.GetByID(ctx, in.UserID)
			if err != nil {
				return nil, err
			}
			result, err := s.commands.Execute(ctx, issuer, room.ID, cmd)
			if err != nil {
				return nil, err
			}
			return &PostOutcome{Command: result}, nil
		}
	}

	if err := s.checkEligibility(ctx, room, channel, memberships); err != nil {
		return nil, err
	}

	var media *MediaRef
	if s.media != nil {
		media = s.media.Validate(in.FileURL, in.FileName, in.FileSize)
	}

	content := NormalizeContent(in.Content)
	messageType := in.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := &models.Message{
		ChannelID:   channel.ID,
		UserID:      in.UserID,
		Content:     content,
		MessageType: messageType,
		ReplyToID:   s.replyTo(ctx, in.ReplyToID),
	}
	if media != nil {
		message.FileURL = media.URL
		message.FileName = media.Name
		message.FileSize = media.Size
	}
	if err := s.messageRepo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	if author, err := s.userRepo.GetByID(ctx, in.UserID); err == nil {
		message.User = author
	}

	mentionResult, err := s.mentions.Resolve(ctx, room.ID, in.UserID, content)
	if err != nil {
		// Mention resolution failing must not lose the committed message.
		slog.WarnContext(ctx, "mention resolution failed", "message_id", message.ID, "err", err)
		mentionResult = &MentionResult{}
	}

	s.pub.ToChannel(channel.ID, notifications.Event{
		Type:    notifications.EventReceiveMessage,
		Payload: s.enrichedPayload(ctx, message, mentionResult),
	})
	observability.MessagesBroadcast.WithLabelValues(strconv.FormatUint(uint64(channel.ID), 10), messageType).Inc()

	s.notifyRecipients(ctx, room, channel, message, mentionResult)

	return &PostOutcome{Message: message, Mentions: mentionResult}, nil
}

// checkBan rejects posting under an active ban and lazily deletes an
// expired one before evaluation continues.
func (s *MessageService) checkBan(ctx context.Context, roomID, userID uint) error {
	ban, err := s.memberRepo.GetBan(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if ban == nil {
		return nil
	}
	if ban.ActiveAt(s.now()) {
		return models.NewForbiddenError("You are banned from this room")
	}
	if err := s.memberRepo.DeleteBan(ctx, roomID, userID); err != nil {
		slog.WarnContext(ctx, "failed to delete expired ban", "room_id", roomID, "user_id", userID, "err", err)
	}
	return nil
}

func (s *MessageService) checkEligibility(ctx context.Context, room *models.Room, channel *models.Channel, memberships []models.Member) error {
	moderator := false
	for _, m := range memberships {
		if m.IsModerator() {
			moderator = true
			break
		}
	}

	if room.Type == models.RoomTypeBroadcast && !moderator {
		return models.NewForbiddenError("Only owners and admins can post in this room")
	}

	now := s.now()
	for _, m := range memberships {
		if m.MutedAt(now) {
			return models.NewForbiddenError("You are muted in this room")
		}
	}

	writerRoles := channel.WriterRoles()
	if len(writerRoles) == 0 || moderator {
		return nil
	}
	userID := memberships[0].UserID
	userRoleIDs, err := s.roleRepo.GetUserRoleIDs(ctx, userID, room.ID)
	if err != nil {
		return err
	}
	held := map[uint]struct{}{}
	for _, id := range userRoleIDs {
		held[id] = struct{}{}
	}
	for _, id := range writerRoles {
		if _, ok := held[id]; ok {
			return nil
		}
	}
	return models.NewForbiddenError("You do not have a role allowed to post in this channel")
}

// replyTo keeps the reference only when the target message exists.
func (s *MessageService) replyTo(ctx context.Context, replyToID *uint) *uint {
	if replyToID == nil {
		return nil
	}
	if _, err := s.messageRepo.GetMessage(ctx, *replyToID); err != nil {
		return nil
	}
	return replyToID
}

// enrichedPayload builds the receive_message event body.
func (s *MessageService) enrichedPayload(ctx context.Context, message *models.Message, mentions *MentionResult) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            message.ID,
		"channel_id":    message.ChannelID,
		"user_id":       message.UserID,
		"msg":           message.Content,
		"timestamp_iso": message.CreatedAt.UTC().Format(time.RFC3339),
		"message_type":  message.MessageType,
		"file_url":      message.FileURL,
		"file_name":     message.FileName,
		"file_size":     message.FileSize,
		"reactions":     s.reactionMap(ctx, message.ID),
		"mentions":      mentions,
	}
	if message.User != nil {
		payload["username"] = message.User.Username
		payload["avatar"] = message.User.Avatar
	}
	if message.EditedAt != nil {
		payload["edited_at_iso"] = message.EditedAt.UTC().Format(time.RFC3339)
	}
	if message.ReplyToID != nil {
		if orig, err := s.messageRepo.GetMessage(ctx, *message.ReplyToID); err == nil {
			username := "Unknown"
			if orig.User != nil {
				username = orig.User.Username
			}
			payload["reply_to"] = map[string]interface{}{
				"id":       orig.ID,
				"username": username,
				"snippet":  Snippet(orig.Content, replySnippetLen),
			}
		}
	}
	return payload
}

// reactionMap groups reactions as emoji -> usernames.
func (s *MessageService) reactionMap(ctx context.Context, messageID uint) map[string][]string {
	result := map[string][]string{}
	reactions, err := s.messageRepo.GetReactions(ctx, messageID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load reactions", "message_id", messageID, "err", err)
		return result
	}
	for _, reaction := range reactions {
		username := ""
		if reaction.User != nil {
			username = reaction.User.Username
		}
		result[reaction.Emoji] = append(result[reaction.Emoji], username)
	}
	return result
}

// notifyRecipients pushes a private notification to every other room member.
// Failures are isolated per recipient: the committed message and the channel
// broadcast already happened and must not be affected.
func (s *MessageService) notifyRecipients(ctx context.Context, room *models.Room, channel *models.Channel, message *models.Message, mentions *MentionResult) {
	members, err := s.memberRepo.GetRoomMembers(ctx, room.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to enumerate room members for notification", "room_id", room.ID, "err", err)
		observability.NotificationFanoutErrors.Inc()
		return
	}

	senderName := ""
	if message.User != nil {
		senderName = message.User.Username
	}

	seen := map[uint]struct{}{}
	for _, member := range members {
		if member.UserID == message.UserID {
			continue
		}
		if _, ok := seen[member.UserID]; ok {
			continue
		}
		seen[member.UserID] = struct{}{}

		unread, err := s.unreadCount(ctx, member.UserID, channel.ID)
		if err != nil {
			slog.WarnContext(ctx, "failed to compute unread count",
				"user_id", member.UserID, "channel_id", channel.ID, "err", err)
			observability.NotificationFanoutErrors.Inc()
			continue
		}

		s.pub.ToUser(member.UserID, notifications.Event{
			Type: notifications.EventMessageNotification,
			Payload: map[string]interface{}{
				"room_id":           room.ID,
				"channel_id":        channel.ID,
				"message_id":        message.ID,
				"sender_id":         message.UserID,
				"sender_username":   senderName,
				"snippet":           Snippet(message.Content, notificationSnippetLen),
				"unread_count":      unread,
				"mentioned":         mentions.Mentions(member.UserID),
				"mention_role_tags": mentions.MentionedRoleTags,
			},
		})

		if room.Type == models.RoomTypeDM {
			s.pub.ToUser(member.UserID, notifications.Event{
				Type:    notifications.EventNewDMMessage,
				Payload: map[string]interface{}{"room_id": room.ID},
			})
		}
	}
}

// unreadCount is the number of messages past the user's read marker, or the
// whole channel when no marker exists.
func (s *MessageService) unreadCount(ctx context.Context, userID, channelID uint) (int64, error) {
	marker, err := s.messageRepo.GetReadMarker(ctx, userID, channelID)
	if err != nil {
		return 0, err
	}
	if marker == nil {
		return s.messageRepo.CountChannelMessages(ctx, channelID)
	}
	return s.messageRepo.CountMessagesAfter(ctx, channelID, marker.LastReadMessageID)
}

// MarkRead advances the user's read marker for a channel.
func (s *MessageService) MarkRead(ctx context.Context, userID, channelID, messageID uint) error {
	return s.messageRepo.UpsertReadMarker(ctx, userID, channelID, messageID)
}

// EditMessage updates the content of the author's own message and broadcasts
// the edit to the channel.
func (s *MessageService) EditMessage(ctx context.Context, userID, messageID uint, content string) (*models.Message, error) {
	message, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", messageID)
		}
		return nil, err
	}
	if message.UserID != userID {
		return nil, models.NewForbiddenError("You can only edit your own messages")
	}

	content = NormalizeContent(content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}

	editedAt := s.now()
	message.Content = content
	message.EditedAt = &editedAt
	if err := s.messageRepo.UpdateMessage(ctx, message); err != nil {
		return nil, err
	}

	s.pub.ToChannel(message.ChannelID, notifications.Event{
		Type: notifications.EventMessageEdited,
		Payload: map[string]interface{}{
			"id":            message.ID,
			"channel_id":    message.ChannelID,
			"msg":           message.Content,
			"edited_at_iso": editedAt.UTC().Format(time.RFC3339),
		},
	})
	return message, nil
}

// DeleteMessage removes a message; allowed for the author or anyone holding
// delete_messages in the room. Reactions cascade with the row.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID uint, permissions *PermissionService) error {
	message, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Message", messageID)
		}
		return err
	}

	if message.UserID != userID {
		channel, err := s.roomRepo.GetChannel(ctx, message.ChannelID)
		if err != nil {
			return err
		}
		allowed, err := permissions.HasPermission(ctx, userID, channel.RoomID, models.PermDeleteMessages)
		if err != nil {
			return err
		}
		if !allowed {
			return models.NewForbiddenError("You do not have permission to delete this message")
		}
	}

	if err := s.messageRepo.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.pub.ToChannel(message.ChannelID, notifications.Event{
		Type: notifications.EventMessageDeleted,
		Payload: map[string]interface{}{
			"id":         messageID,
			"channel_id": message.ChannelID,
		},
	})
	return nil
}

// ToggleReaction flips one user's emoji reaction on a message and broadcasts
// the updated reaction map.
func (s *MessageService) ToggleReaction(ctx context.Context, userID, messageID uint, emoji string) error {
	message, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Message", messageID)
		}
		return err
	}
	if emoji == "" {
		return models.NewValidationError("Emoji is required")
	}

	if _, err := s.messageRepo.ToggleReaction(ctx, messageID, userID, emoji); err != nil {
		return err
	}

	s.pub.ToChannel(message.ChannelID, notifications.Event{
		Type: notifications.EventReactionsUpdated,
		Payload: map[string]interface{}{
			"id":         messageID,
			"channel_id": message.ChannelID,
			"reactions":  s.reactionMap(ctx, messageID),
		},
	})
	return nil
}
