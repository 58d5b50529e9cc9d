package repository

import (
	"context"
	"errors"
	"time"

	"combox/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRepository defines the interface for membership and ban data operations
type MemberRepository interface {
	CreateMember(ctx context.Context, member *models.Member) error
	GetMember(ctx context.Context, userID, roomID uint) (*models.Member, error)
	GetMembers(ctx context.Context, userID, roomID uint) ([]models.Member, error)
	GetRoomMembers(ctx context.Context, roomID uint) ([]models.Member, error)
	FindRoomUserByUsername(ctx context.Context, roomID uint, username string) (*models.User, error)
	SetMutedUntil(ctx context.Context, userID, roomID uint, until *time.Time) error
	DeleteMembers(ctx context.Context, userID, roomID uint) error
	GetBan(ctx context.Context, roomID, userID uint) (*models.RoomBan, error)
	UpsertBan(ctx context.Context, ban *models.RoomBan) error
	DeleteBan(ctx context.Context, roomID, userID uint) error
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) CreateMember(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

// GetMember returns the first matching membership row, or nil when none exists.
func (r *memberRepository) GetMember(ctx context.Context, userID, roomID uint) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Order("id ASC").
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// GetMembers returns every membership row for the pair. Legacy data can hold
// duplicates, so moderation must see the whole set.
func (r *memberRepository) GetMembers(ctx context.Context, userID, roomID uint) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Find(&members).Error
	return members, err
}

func (r *memberRepository) GetRoomMembers(ctx context.Context, roomID uint) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Preload("User").
		Find(&members).Error
	return members, err
}

// FindRoomUserByUsername resolves a room member by case-insensitive username.
func (r *memberRepository) FindRoomUserByUsername(ctx context.Context, roomID uint, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN members ON members.user_id = users.id").
		Where("members.room_id = ? AND LOWER(users.username) = LOWER(?)", roomID, username).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// SetMutedUntil updates every membership row for the pair.
func (r *memberRepository) SetMutedUntil(ctx context.Context, userID, roomID uint, until *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Update("muted_until", until).Error
}

func (r *memberRepository) DeleteMembers(ctx context.Context, userID, roomID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Delete(&models.Member{}).Error
}

func (r *memberRepository) GetBan(ctx context.Context, roomID, userID uint) (*models.RoomBan, error) {
	var ban models.RoomBan
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&ban).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ban, nil
}

func (r *memberRepository) UpsertBan(ctx context.Context, ban *models.RoomBan) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"banned_by_user_id", "reason", "banned_until", "updated_at"}),
		}).
		Create(ban).Error
}

func (r *memberRepository) DeleteBan(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomBan{}).Error
}
