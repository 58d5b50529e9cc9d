package repository

import (
	"context"

	"combox/internal/models"

	"gorm.io/gorm"
)

// RoomRepository defines the interface for room and channel data operations
type RoomRepository interface {
	GetRoom(ctx context.Context, id uint) (*models.Room, error)
	GetChannel(ctx context.Context, id uint) (*models.Channel, error)
	GetRoomChannels(ctx context.Context, roomID uint) ([]models.Channel, error)
	GetUserRoomIDs(ctx context.Context, userID uint) ([]uint, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) GetRoom(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetChannel(ctx context.Context, id uint) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *roomRepository) GetRoomChannels(ctx context.Context, roomID uint) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&channels).Error
	return channels, err
}

// GetUserRoomIDs returns the distinct room ids the user is a member of.
func (r *roomRepository) GetUserRoomIDs(ctx context.Context, userID uint) ([]uint, error) {
	var roomIDs []uint
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Distinct("room_id").
		Where("user_id = ?", userID).
		Pluck("room_id", &roomIDs).Error
	return roomIDs, err
}
