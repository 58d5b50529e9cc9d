package service

import (
	"sync"
	"testing"

	"combox/internal/database"
	"combox/internal/models"
	"combox/internal/notifications"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an in-memory sqlite database with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	Group string
	Event notifications.Event
}

func (p *capturePublisher) ToChannel(channelID uint, event notifications.Event) {
	p.record(notifications.ChannelGroup(channelID), event)
}

func (p *capturePublisher) ToUser(userID uint, event notifications.Event) {
	p.record(notifications.UserGroup(userID), event)
}

func (p *capturePublisher) record(group string, event notifications.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Group: group, Event: event})
}

// byType returns every captured event of the given type.
func (p *capturePublisher) byType(eventType string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// seedUser inserts a user row.
func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "x",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// seedRoom inserts a room with one channel and returns both.
func seedRoom(t *testing.T, db *gorm.DB, name string, roomType models.RoomType, ownerID uint) (*models.Room, *models.Channel) {
	t.Helper()
	room := &models.Room{Name: name, Type: roomType, OwnerID: ownerID}
	require.NoError(t, db.Create(room).Error)
	channel := &models.Channel{RoomID: room.ID, Name: "general"}
	require.NoError(t, db.Create(channel).Error)
	return room, channel
}

// seedMember inserts a membership row with the given coarse role.
func seedMember(t *testing.T, db *gorm.DB, userID, roomID uint, role string) *models.Member {
	t.Helper()
	member := &models.Member{UserID: userID, RoomID: roomID, Role: role}
	require.NoError(t, db.Create(member).Error)
	return member
}
