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

type presenceFixture struct {
	db        *gorm.DB
	userRepo  repository.UserRepository
	pub       *capturePublisher
	svc       *PresenceService
	connected map[uint]bool
	now       time.Time

	user    *models.User
	room    *models.Room
	channel *models.Channel
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()
	db := setupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	pub := &capturePublisher{}

	fx := &presenceFixture{
		db:        db,
		userRepo:  userRepo,
		pub:       pub,
		connected: map[uint]bool{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.svc = NewPresenceService(userRepo, roomRepo, pub, func(userID uint) bool {
		return fx.connected[userID]
	})
	fx.svc.now = func() time.Time { return fx.now }

	fx.user = seedUser(t, db, "alice")
	fx.room, fx.channel = seedRoom(t, db, "lounge", models.RoomTypeGroup, fx.user.ID)
	seedMember(t, db, fx.user.ID, fx.room.ID, models.MemberRoleOwner)
	return fx
}

func (fx *presenceFixture) status(t *testing.T) models.PresenceStatus {
	t.Helper()
	user, err := fx.userRepo.GetByID(context.Background(), fx.user.ID)
	require.NoError(t, err)
	return user.PresenceStatus
}

func TestPresenceService_ConnectDisconnect(t *testing.T) {
	fx := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.HandleConnect(ctx, fx.user.ID))
	assert.Equal(t, models.PresenceOnline, fx.status(t))

	events := fx.pub.byType(notifications.EventPresenceUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, notifications.ChannelGroup(fx.channel.ID), events[0].Group)
	payload := events[0].Event.Payload.(map[string]interface{})
	assert.Equal(t, models.PresenceOnline, payload["status"])
	assert.NotContains(t, payload, "last_seen")

	fx.pub.reset()
	require.NoError(t, fx.svc.HandleDisconnect(ctx, fx.user.ID))
	assert.Equal(t, models.PresenceOffline, fx.status(t))

	user, err := fx.userRepo.GetByID(ctx, fx.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastSeen)
	assert.Equal(t, fx.now, user.LastSeen.UTC())

	events = fx.pub.byType(notifications.EventPresenceUpdated)
	require.Len(t, events, 1)
	payload = events[0].Event.Payload.(map[string]interface{})
	assert.Contains(t, payload, "last_seen")
}

func TestPresenceService_HiddenUser(t *testing.T) {
	fx := newPresenceFixture(t)
	ctx := context.Background()

	fx.user.HideStatus = true
	require.NoError(t, fx.db.Save(fx.user).Error)

	require.NoError(t, fx.svc.HandleConnect(ctx, fx.user.ID))
	assert.Equal(t, models.PresenceHidden, fx.status(t))

	require.NoError(t, fx.svc.HandleDisconnect(ctx, fx.user.ID))
	assert.Equal(t, models.PresenceHidden, fx.status(t))

	// Observers only ever see hidden.
	for _, e := range fx.pub.byType(notifications.EventPresenceUpdated) {
		payload := e.Event.Payload.(map[string]interface{})
		assert.Equal(t, models.PresenceHidden, payload["status"])
	}
}

func TestPresenceService_SetHidePreference(t *testing.T) {
	fx := newPresenceFixture(t)
	ctx := context.Background()

	t.Run("hide while connected", func(t *testing.T) {
		fx.connected[fx.user.ID] = true
		require.NoError(t, fx.svc.HandleConnect(ctx, fx.user.ID))
		fx.pub.reset()

		require.NoError(t, fx.svc.SetHidePreference(ctx, fx.user.ID, true))
		assert.Equal(t, models.PresenceHidden, fx.status(t))

		// Exactly one push per channel, all reporting hidden.
		events := fx.pub.byType(notifications.EventPresenceUpdated)
		require.Len(t, events, 1)
		payload := events[0].Event.Payload.(map[string]interface{})
		assert.Equal(t, models.PresenceHidden, payload["status"])
	})

	t.Run("unhide while connected restores online", func(t *testing.T) {
		require.NoError(t, fx.svc.SetHidePreference(ctx, fx.user.ID, false))
		assert.Equal(t, models.PresenceOnline, fx.status(t))
	})

	t.Run("unhide preserves away", func(t *testing.T) {
		user, err := fx.userRepo.GetByID(ctx, fx.user.ID)
		require.NoError(t, err)
		user.PresenceStatus = models.PresenceAway
		user.HideStatus = true
		require.NoError(t, fx.db.Save(user).Error)

		require.NoError(t, fx.svc.SetHidePreference(ctx, fx.user.ID, false))
		assert.Equal(t, models.PresenceAway, fx.status(t))
	})

	t.Run("unhide while disconnected goes offline", func(t *testing.T) {
		fx.connected[fx.user.ID] = false
		require.NoError(t, fx.svc.SetHidePreference(ctx, fx.user.ID, true))
		require.NoError(t, fx.svc.SetHidePreference(ctx, fx.user.ID, false))
		assert.Equal(t, models.PresenceOffline, fx.status(t))
	})
}

func TestPresenceService_FanOutPerChannel(t *testing.T) {
	fx := newPresenceFixture(t)
	ctx := context.Background()

	// Second channel in the first room and a second room with one channel.
	extra := &models.Channel{RoomID: fx.room.ID, Name: "random"}
	require.NoError(t, fx.db.Create(extra).Error)
	room2, channel2 := seedRoom(t, fx.db, "den", models.RoomTypeGroup, fx.user.ID)
	seedMember(t, fx.db, fx.user.ID, room2.ID, models.MemberRoleOwner)

	// A room the user is not in must not receive anything.
	other := seedUser(t, fx.db, "bob")
	_, otherChannel := seedRoom(t, fx.db, "private", models.RoomTypeGroup, other.ID)
	seedMember(t, fx.db, other.ID, otherChannel.RoomID, models.MemberRoleOwner)

	require.NoError(t, fx.svc.HandleConnect(ctx, fx.user.ID))

	events := fx.pub.byType(notifications.EventPresenceUpdated)
	groups := make([]string, 0, len(events))
	for _, e := range events {
		groups = append(groups, e.Group)
	}
	assert.ElementsMatch(t, groups, []string{
		notifications.ChannelGroup(fx.channel.ID),
		notifications.ChannelGroup(extra.ID),
		notifications.ChannelGroup(channel2.ID),
	})
}
