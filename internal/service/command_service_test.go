package service

import (
	"context"
	"testing"
	"time"

	"combox/internal/models"
	"combox/internal/notifications"
	"combox/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    CommandKind
		target  string
	}{
		{"plain text", "hello world", NotACommand, ""},
		{"unknown command", "/dance @bob", NotACommand, ""},
		{"slash only", "/", NotACommand, ""},
		{"mute with at", "/mute @bob 10m", CommandMute, "bob"},
		{"mute without at", "/mute bob 10m", CommandMute, "bob"},
		{"case insensitive", "/MUTE @bob 10m", CommandMute, "bob"},
		{"leading whitespace", "   /kick @bob", CommandKick, "bob"},
		{"unmute", "/unmute @bob", CommandUnmute, "bob"},
		{"ban", "/ban @bob", CommandBan, "bob"},
		{"missing target", "/kick", CommandKick, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ParseCommand(tt.content)
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, tt.target, cmd.Target)
		})
	}
}

func TestParseCommand_Arguments(t *testing.T) {
	t.Run("mute duration and reason", func(t *testing.T) {
		cmd := ParseCommand("/mute @bob 2h spamming the channel")
		require.NotNil(t, cmd.Duration)
		assert.Equal(t, 2*time.Hour, *cmd.Duration)
		assert.Equal(t, "spamming the channel", cmd.Reason)
	})

	t.Run("mute invalid duration keeps token", func(t *testing.T) {
		cmd := ParseCommand("/mute @bob forever")
		assert.Nil(t, cmd.Duration)
		assert.Equal(t, "forever", cmd.DurationToken)
	})

	t.Run("ban without duration treats rest as reason", func(t *testing.T) {
		cmd := ParseCommand("/ban @bob being rude")
		assert.Nil(t, cmd.Duration)
		assert.Equal(t, "being rude", cmd.Reason)
	})

	t.Run("ban with duration and reason", func(t *testing.T) {
		cmd := ParseCommand("/ban @bob 1d cool off")
		require.NotNil(t, cmd.Duration)
		assert.Equal(t, 24*time.Hour, *cmd.Duration)
		assert.Equal(t, "cool off", cmd.Reason)
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		token string
		want  time.Duration
		ok    bool
	}{
		{"10", 10 * time.Minute, true},
		{"10m", 10 * time.Minute, true},
		{"2h", 2 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"0", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"abc", 0, false},
		{"10x", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ParseDuration(tt.token)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

type commandFixture struct {
	db         *gorm.DB
	memberRepo repository.MemberRepository
	roomRepo   repository.RoomRepository
	pub        *capturePublisher
	svc        *CommandService
	now        time.Time

	owner   *models.User
	mod     *models.User
	regular *models.User
	room    *models.Room
	channel *models.Channel
}

func newCommandFixture(t *testing.T) *commandFixture {
	t.Helper()
	db := setupTestDB(t)
	memberRepo := repository.NewMemberRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	pub := &capturePublisher{}
	permissions := NewPermissionService(memberRepo, roleRepo)
	svc := NewCommandService(memberRepo, roomRepo, permissions, pub)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	fx := &commandFixture{
		db:         db,
		memberRepo: memberRepo,
		roomRepo:   roomRepo,
		pub:        pub,
		svc:        svc,
		now:        now,
	}

	fx.owner = seedUser(t, db, "alice")
	fx.mod = seedUser(t, db, "bob")
	fx.regular = seedUser(t, db, "carol")
	fx.room, fx.channel = seedRoom(t, db, "lounge", models.RoomTypeGroup, fx.owner.ID)
	seedMember(t, db, fx.owner.ID, fx.room.ID, models.MemberRoleOwner)
	seedMember(t, db, fx.mod.ID, fx.room.ID, models.MemberRoleAdmin)
	seedMember(t, db, fx.regular.ID, fx.room.ID, models.MemberRoleMember)
	return fx
}

func TestCommandService_Mute(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/mute @carol 10m"))
	require.NoError(t, err)
	assert.True(t, result.OK)

	member, err := fx.memberRepo.GetMember(ctx, fx.regular.ID, fx.room.ID)
	require.NoError(t, err)
	require.NotNil(t, member.MutedUntil)
	assert.Equal(t, fx.now.Add(10*time.Minute), member.MutedUntil.UTC())

	// The mute is in force strictly before the deadline and not at it.
	assert.True(t, member.MutedAt(fx.now.Add(10*time.Minute-time.Second)))
	assert.False(t, member.MutedAt(fx.now.Add(10*time.Minute)))

	events := fx.pub.byType(notifications.EventMemberMuteUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, notifications.ChannelGroup(fx.channel.ID), events[0].Group)
}

func TestCommandService_Mute_RequiresDuration(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/mute @carol"))
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "Usage")

	result, err = fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/mute @carol forever"))
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "Invalid duration")
}

func TestCommandService_Unmute(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/mute @carol 10m"))
	require.NoError(t, err)

	result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/unmute @carol"))
	require.NoError(t, err)
	assert.True(t, result.OK)

	member, err := fx.memberRepo.GetMember(ctx, fx.regular.ID, fx.room.ID)
	require.NoError(t, err)
	assert.Nil(t, member.MutedUntil)

	// Unmuting someone who is not muted still succeeds.
	result, err = fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/unmute @carol"))
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestCommandService_Kick(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/kick @carol spamming"))
	require.NoError(t, err)
	assert.True(t, result.OK)

	member, err := fx.memberRepo.GetMember(ctx, fx.regular.ID, fx.room.ID)
	require.NoError(t, err)
	assert.Nil(t, member)

	removed := fx.pub.byType(notifications.EventMemberRemoved)
	require.Len(t, removed, 1)

	redirects := fx.pub.byType(notifications.EventForceRedirect)
	require.Len(t, redirects, 1)
	assert.Equal(t, notifications.UserGroup(fx.regular.ID), redirects[0].Group)
}

func TestCommandService_Ban(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/ban @carol 60m repeated spam"))
	require.NoError(t, err)
	assert.True(t, result.OK)

	// Exactly one ban row, expiring at now+60m.
	var bans []models.RoomBan
	require.NoError(t, fx.db.Find(&bans).Error)
	require.Len(t, bans, 1)
	assert.Equal(t, fx.regular.ID, bans[0].UserID)
	assert.Equal(t, "repeated spam", bans[0].Reason)
	require.NotNil(t, bans[0].BannedUntil)
	assert.Equal(t, fx.now.Add(time.Hour), bans[0].BannedUntil.UTC())

	// Membership rows are gone.
	member, err := fx.memberRepo.GetMember(ctx, fx.regular.ID, fx.room.ID)
	require.NoError(t, err)
	assert.Nil(t, member)

	removed := fx.pub.byType(notifications.EventMemberRemoved)
	require.Len(t, removed, 1)
	payload := removed[0].Event.Payload.(map[string]interface{})
	assert.Equal(t, true, payload["banned"])
}

func TestCommandService_Ban_DefaultReasonAndPermanent(t *testing.T) {
	fx := newCommandFixture(t)

	result, err := fx.svc.Execute(context.Background(), fx.mod, fx.room.ID, ParseCommand("/ban @carol"))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "permanently")

	var ban models.RoomBan
	require.NoError(t, fx.db.First(&ban).Error)
	assert.Equal(t, defaultBanReason, ban.Reason)
	assert.Nil(t, ban.BannedUntil)
}

func TestCommandService_Ban_Upsert(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/ban @carol 10m first"))
	require.NoError(t, err)

	// Re-seed membership to ban again.
	seedMember(t, fx.db, fx.regular.ID, fx.room.ID, models.MemberRoleMember)
	_, err = fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/ban @carol 20m second"))
	require.NoError(t, err)

	var bans []models.RoomBan
	require.NoError(t, fx.db.Find(&bans).Error)
	require.Len(t, bans, 1)
	assert.Equal(t, "second", bans[0].Reason)
}

func TestCommandService_PermissionDenied(t *testing.T) {
	fx := newCommandFixture(t)

	result, err := fx.svc.Execute(context.Background(), fx.regular, fx.room.ID, ParseCommand("/mute @bob 10m"))
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "permission")

	// No state changed.
	member, err := fx.memberRepo.GetMember(context.Background(), fx.mod.ID, fx.room.ID)
	require.NoError(t, err)
	assert.Nil(t, member.MutedUntil)
}

func TestCommandService_GrantedThroughRole(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	roleRepo := repository.NewRoleRepository(fx.db)
	muters := &models.Role{RoomID: fx.room.ID, Name: "muters", MentionTag: "muters",
		PermissionsJSON: `["mute_members"]`}
	require.NoError(t, roleRepo.CreateRole(ctx, muters))
	require.NoError(t, roleRepo.LinkMemberRole(ctx, fx.regular.ID, fx.room.ID, muters.ID))

	target := seedUser(t, fx.db, "dave")
	seedMember(t, fx.db, target.ID, fx.room.ID, models.MemberRoleMember)

	result, err := fx.svc.Execute(ctx, fx.regular, fx.room.ID, ParseCommand("/mute @dave 5m"))
	require.NoError(t, err)
	assert.True(t, result.OK)

	// The same role does not grant kicking.
	result, err = fx.svc.Execute(ctx, fx.regular, fx.room.ID, ParseCommand("/kick @dave"))
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestCommandService_TargetGuards(t *testing.T) {
	fx := newCommandFixture(t)
	ctx := context.Background()

	t.Run("unknown target", func(t *testing.T) {
		result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/kick @nobody"))
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Contains(t, result.Message, "not found")
	})

	t.Run("missing target", func(t *testing.T) {
		result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/kick"))
		require.NoError(t, err)
		assert.False(t, result.OK)
	})

	t.Run("self target", func(t *testing.T) {
		result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/kick @bob"))
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Contains(t, result.Message, "yourself")
	})

	t.Run("owner protected from admin", func(t *testing.T) {
		result, err := fx.svc.Execute(ctx, fx.mod, fx.room.ID, ParseCommand("/ban @alice"))
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Contains(t, result.Message, "owner")
	})

	t.Run("case-insensitive target lookup", func(t *testing.T) {
		result, err := fx.svc.Execute(ctx, fx.owner, fx.room.ID, ParseCommand("/mute @CAROL 5m"))
		require.NoError(t, err)
		assert.True(t, result.OK)
	})

	t.Run("superuser may target owner", func(t *testing.T) {
		root := seedUser(t, fx.db, "root")
		root.IsSuperuser = true
		require.NoError(t, fx.db.Save(root).Error)

		result, err := fx.svc.Execute(ctx, root, fx.room.ID, ParseCommand("/kick @alice"))
		require.NoError(t, err)
		assert.True(t, result.OK)
	})
}
