package repository

import (
	"context"
	"errors"

	"combox/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendRepository defines the interface for friend request data operations
type FriendRepository interface {
	CreateRequest(ctx context.Context, req *models.FriendRequest) error
	GetRequest(ctx context.Context, id uint) (*models.FriendRequest, error)
	GetPendingRequest(ctx context.Context, senderID, receiverID uint) (*models.FriendRequest, error)
	GetPendingRequests(ctx context.Context, receiverID uint) ([]models.FriendRequest, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

type friendRepository struct {
	db *gorm.DB
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db}
}

// CreateRequest inserts the request, reusing the existing pair row when the
// previous request between the two users was already resolved.
func (r *friendRepository) CreateRequest(ctx context.Context, req *models.FriendRequest) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sender_id"}, {Name: "receiver_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"status": models.FriendRequestPending}),
		}).
		Create(req).Error
}

func (r *friendRepository) GetRequest(ctx context.Context, id uint) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Receiver").
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetPendingRequest returns the pending request between the pair in either
// direction, or nil when none exists.
func (r *friendRepository) GetPendingRequest(ctx context.Context, senderID, receiverID uint) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.FriendRequestPending).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			senderID, receiverID, receiverID, senderID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *friendRepository) GetPendingRequests(ctx context.Context, receiverID uint) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, models.FriendRequestPending).
		Preload("Sender").
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

func (r *friendRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.FriendRequest{}).
		Where("id = ?", id).
		Update("status", status).Error
}
