package repository

import (
	"context"
	"errors"

	"combox/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for message, reaction and
// read-marker data operations
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error
	DeleteMessage(ctx context.Context, id uint) error
	GetReactions(ctx context.Context, messageID uint) ([]models.MessageReaction, error)
	ToggleReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error)
	CountMessagesAfter(ctx context.Context, channelID, afterID uint) (int64, error)
	CountChannelMessages(ctx context.Context, channelID uint) (int64, error)
	GetReadMarker(ctx context.Context, userID, channelID uint) (*models.ReadMessage, error)
	UpsertReadMarker(ctx context.Context, userID, channelID, messageID uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("User").
		First(&msg, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) UpdateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

// DeleteMessage removes the message and its reactions.
func (r *messageRepository) DeleteMessage(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, id).Error
	})
}

func (r *messageRepository) GetReactions(ctx context.Context, messageID uint) ([]models.MessageReaction, error) {
	var reactions []models.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Preload("User").
		Find(&reactions).Error
	return reactions, err
}

// ToggleReaction adds the reaction if absent, removes it if present.
// Returns true when the reaction was added.
func (r *messageRepository) ToggleReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error) {
	var existing models.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		First(&existing).Error
	switch {
	case err == nil:
		if err := r.db.WithContext(ctx).Delete(&existing).Error; err != nil {
			return false, err
		}
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		reaction := models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
		if err := r.db.WithContext(ctx).Create(&reaction).Error; err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

func (r *messageRepository) CountMessagesAfter(ctx context.Context, channelID, afterID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("channel_id = ? AND id > ?", channelID, afterID).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) CountChannelMessages(ctx context.Context, channelID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("channel_id = ?", channelID).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) GetReadMarker(ctx context.Context, userID, channelID uint) (*models.ReadMessage, error) {
	var marker models.ReadMessage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&marker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &marker, nil
}

func (r *messageRepository) UpsertReadMarker(ctx context.Context, userID, channelID, messageID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "updated_at"}),
		}).
		Create(&models.ReadMessage{
			UserID:            userID,
			ChannelID:         channelID,
			LastReadMessageID: messageID,
		}).Error
}
