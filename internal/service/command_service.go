package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"combox/internal/models"
	"combox/internal/notifications"
	"combox/internal/observability"
	"combox/internal/repository"
)

// CommandKind identifies a recognized moderation command.
type CommandKind int

const (
	// NotACommand marks text that is not a recognized slash command.
	NotACommand CommandKind = iota
	CommandMute
	CommandUnmute
	CommandKick
	CommandBan
)

// String returns the command's slash form.
func (k CommandKind) String() string {
	switch k {
	case CommandMute:
		return "/mute"
	case CommandUnmute:
		return "/unmute"
	case CommandKick:
		return "/kick"
	case CommandBan:
		return "/ban"
	default:
		return ""
	}
}

// permissionFor maps each command to the key that authorizes it.
func (k CommandKind) permissionFor() models.PermissionKey {
	switch k {
	case CommandMute, CommandUnmute:
		return models.PermMuteMembers
	case CommandKick:
		return models.PermKickMembers
	case CommandBan:
		return models.PermBanMembers
	default:
		return ""
	}
}

// Command is the parsed form of a moderation slash command.
type Command struct {
	Kind CommandKind

	// Target is the second token with a leading @ stripped.
	Target string

	// Duration is set when a valid duration token was supplied. Mute
	// requires one; ban treats absence as permanent.
	Duration *time.Duration

	// DurationToken is the raw token consumed as a duration candidate for
	// /mute, kept so an invalid value can be reported.
	DurationToken string

	Reason string
}

var durationTokenRe = regexp.MustCompile(`^\d+[mhd]?$`)

// ParseDuration converts a duration token into a duration. Bare digits are
// minutes; m/h/d suffixes select minutes, hours or days.
func ParseDuration(token string) (time.Duration, bool) {
	if !durationTokenRe.MatchString(token) {
		return 0, false
	}
	unit := time.Minute
	digits := token
	switch token[len(token)-1] {
	case 'm':
		digits = token[:len(token)-1]
	case 'h':
		unit = time.Hour
		digits = token[:len(token)-1]
	case 'd':
		unit = 24 * time.Hour
		digits = token[:len(token)-1]
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// ParseCommand recognizes a moderation slash command in message text. Text
// that does not begin with a known command token yields NotACommand.
func ParseCommand(content string) Command {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: NotACommand}
	}

	tokens := strings.Fields(trimmed)
	var kind CommandKind
	switch strings.ToLower(tokens[0]) {
	case "/mute":
		kind = CommandMute
	case "/unmute":
		kind = CommandUnmute
	case "/kick":
		kind = CommandKick
	case "/ban":
		kind = CommandBan
	default:
		return Command{Kind: NotACommand}
	}

	cmd := Command{Kind: kind}
	if len(tokens) > 1 {
		cmd.Target = strings.TrimPrefix(tokens[1], "@")
	}

	rest := tokens[2:]
	switch kind {
	case CommandMute:
		// Third token is the required duration; the remainder is the reason.
		if len(rest) > 0 {
			cmd.DurationToken = rest[0]
			if d, ok := ParseDuration(rest[0]); ok {
				cmd.Duration = &d
			}
			cmd.Reason = strings.Join(rest[1:], " ")
		}
	case CommandBan:
		// Duration is optional; when the third token is not a duration it
		// starts the reason instead.
		if len(rest) > 0 {
			if d, ok := ParseDuration(rest[0]); ok {
				cmd.Duration = &d
				rest = rest[1:]
			}
			cmd.Reason = strings.Join(rest, " ")
		}
	case CommandKick:
		cmd.Reason = strings.Join(rest, " ")
	}

	return cmd
}

// CommandResult is the acknowledgment sent to the issuing connection only.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

const defaultBanReason = "Rule violation"

// CommandService executes moderation commands: permission checks, membership
// and ban mutation, and state-change notifications.
type CommandService struct {
	memberRepo  repository.MemberRepository
	roomRepo    repository.RoomRepository
	permissions *PermissionService
	pub         notifications.Publisher
	now         func() time.Time
}

// NewCommandService returns a new CommandService.
func NewCommandService(
	memberRepo repository.MemberRepository,
	roomRepo repository.RoomRepository,
	permissions *PermissionService,
	pub notifications.Publisher,
) *CommandService {
	return &CommandService{
		memberRepo:  memberRepo,
		roomRepo:    roomRepo,
		permissions: permissions,
		pub:         pub,
		now:         time.Now,
	}
}

// Execute runs a parsed command on behalf of the issuer. The returned result
// always goes to the issuing connection only; room-wide state changes are
// broadcast as side effects. An error is returned only for persistence
// failures, never for command rejections.
func (s *CommandService) Execute(ctx context.Context, issuer *models.User, roomID uint, cmd Command) (*CommandResult, error) {
	result, err := s.execute(ctx, issuer, roomID, cmd)
	outcome := "denied"
	if err != nil {
		outcome = "error"
	} else if result.OK {
		outcome = "ok"
	}
	observability.ModerationCommands.WithLabelValues(cmd.Kind.String(), outcome).Inc()
	return result, err
}

func (s *CommandService) execute(ctx context.Context, issuer *models.User, roomID uint, cmd Command) (*CommandResult, error) {
	allowed := issuer.IsSuperuser
	if !allowed {
		var err error
		allowed, err = s.permissions.HasPermission(ctx, issuer.ID, roomID, cmd.Kind.permissionFor())
		if err != nil {
			return nil, err
		}
	}
	if !allowed {
		return &CommandResult{OK: false, Message: fmt.Sprintf("You do not have permission to use %s", cmd.Kind)}, nil
	}

	if cmd.Target == "" {
		return &CommandResult{OK: false, Message: fmt.Sprintf("Usage: %s @user", cmd.Kind)}, nil
	}

	target, err := s.memberRepo.FindRoomUserByUsername(ctx, roomID, cmd.Target)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return &CommandResult{OK: false, Message: fmt.Sprintf("User @%s not found", cmd.Target)}, nil
	}

	switch cmd.Kind {
	case CommandMute:
		return s.mute(ctx, issuer, target, roomID, cmd)
	case CommandUnmute:
		return s.unmute(ctx, target, roomID)
	case CommandKick:
		return s.kick(ctx, issuer, target, roomID, cmd.Reason)
	case CommandBan:
		return s.ban(ctx, issuer, target, roomID, cmd)
	default:
		return &CommandResult{OK: false, Message: "Unknown command"}, nil
	}
}

// guardTarget rejects self-moderation and owner targets for non-superusers.
func (s *CommandService) guardTarget(ctx context.Context, issuer, target *models.User, roomID uint, verb string) (*CommandResult, error) {
	if issuer.ID == target.ID {
		return &CommandResult{OK: false, Message: fmt.Sprintf("You cannot %s yourself", verb)}, nil
	}
	if issuer.IsSuperuser {
		return nil, nil
	}
	memberships, err := s.memberRepo.GetMembers(ctx, target.ID, roomID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.Role == models.MemberRoleOwner {
			return &CommandResult{OK: false, Message: fmt.Sprintf("You cannot %s the room owner", verb)}, nil
		}
	}
	return nil, nil
}

func (s *CommandService) mute(ctx context.Context, issuer, target *models.User, roomID uint, cmd Command) (*CommandResult, error) {
	if cmd.Duration == nil {
		if cmd.DurationToken == "" {
			return &CommandResult{OK: false, Message: "Usage: /mute @user <duration>, e.g. /mute @user 10m"}, nil
		}
		return &CommandResult{OK: false, Message: fmt.Sprintf("Invalid duration %q (use digits with optional m/h/d suffix)", cmd.DurationToken)}, nil
	}
	if denied, err := s.guardTarget(ctx, issuer, target, roomID, "mute"); denied != nil || err != nil {
		return denied, err
	}

	until := s.now().Add(*cmd.Duration)
	if err := s.memberRepo.SetMutedUntil(ctx, target.ID, roomID, &until); err != nil {
		return nil, err
	}

	s.broadcastToRoom(ctx, roomID, notifications.Event{
		Type: notifications.EventMemberMuteUpdated,
		Payload: map[string]interface{}{
			"room_id":     roomID,
			"user_id":     target.ID,
			"username":    target.Username,
			"muted_until": until,
		},
	})

	return &CommandResult{OK: true, Message: fmt.Sprintf("Muted @%s for %s", target.Username, cmd.Duration)}, nil
}

// unmute clears the mute on all membership rows. It succeeds even when the
// target is not currently muted.
func (s *CommandService) unmute(ctx context.Context, target *models.User, roomID uint) (*CommandResult, error) {
	if err := s.memberRepo.SetMutedUntil(ctx, target.ID, roomID, nil); err != nil {
		return nil, err
	}

	s.broadcastToRoom(ctx, roomID, notifications.Event{
		Type: notifications.EventMemberMuteUpdated,
		Payload: map[string]interface{}{
			"room_id":     roomID,
			"user_id":     target.ID,
			"username":    target.Username,
			"muted_until": nil,
		},
	})

	return &CommandResult{OK: true, Message: fmt.Sprintf("Unmuted @%s", target.Username)}, nil
}

func (s *CommandService) kick(ctx context.Context, issuer, target *models.User, roomID uint, reason string) (*CommandResult, error) {
	if denied, err := s.guardTarget(ctx, issuer, target, roomID, "kick"); denied != nil || err != nil {
		return denied, err
	}

	if err := s.memberRepo.DeleteMembers(ctx, target.ID, roomID); err != nil {
		return nil, err
	}

	s.broadcastToRoom(ctx, roomID, notifications.Event{
		Type: notifications.EventMemberRemoved,
		Payload: map[string]interface{}{
			"room_id":  roomID,
			"user_id":  target.ID,
			"username": target.Username,
		},
	})
	s.pub.ToUser(target.ID, notifications.Event{
		Type: notifications.EventForceRedirect,
		Payload: map[string]interface{}{
			"location": "/",
			"reason":   reason,
		},
	})

	return &CommandResult{OK: true, Message: fmt.Sprintf("Kicked @%s", target.Username)}, nil
}

func (s *CommandService) ban(ctx context.Context, issuer, target *models.User, roomID uint, cmd Command) (*CommandResult, error) {
	if denied, err := s.guardTarget(ctx, issuer, target, roomID, "ban"); denied != nil || err != nil {
		return denied, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultBanReason
	}

	var bannedUntil *time.Time
	if cmd.Duration != nil {
		until := s.now().Add(*cmd.Duration)
		bannedUntil = &until
	}

	ban := &models.RoomBan{
		RoomID:         roomID,
		UserID:         target.ID,
		BannedByUserID: issuer.ID,
		Reason:         reason,
		BannedUntil:    bannedUntil,
	}
	if err := s.memberRepo.UpsertBan(ctx, ban); err != nil {
		return nil, err
	}
	if err := s.memberRepo.DeleteMembers(ctx, target.ID, roomID); err != nil {
		return nil, err
	}

	s.broadcastToRoom(ctx, roomID, notifications.Event{
		Type: notifications.EventMemberRemoved,
		Payload: map[string]interface{}{
			"room_id":  roomID,
			"user_id":  target.ID,
			"username": target.Username,
			"banned":   true,
		},
	})
	s.pub.ToUser(target.ID, notifications.Event{
		Type: notifications.EventForceRedirect,
		Payload: map[string]interface{}{
			"location": "/",
			"reason":   reason,
		},
	})

	if bannedUntil != nil {
		return &CommandResult{OK: true, Message: fmt.Sprintf("Banned @%s for %s", target.Username, cmd.Duration)}, nil
	}
	return &CommandResult{OK: true, Message: fmt.Sprintf("Banned @%s permanently", target.Username)}, nil
}

// broadcastToRoom pushes an event to every channel group of the room.
func (s *CommandService) broadcastToRoom(ctx context.Context, roomID uint, event notifications.Event) {
	channels, err := s.roomRepo.GetRoomChannels(ctx, roomID)
	if err != nil {
		slog.WarnContext(ctx, "failed to enumerate room channels for broadcast", "room_id", roomID, "err", err)
		return
	}
	for _, channel := range channels {
		s.pub.ToChannel(channel.ID, event)
	}
}
