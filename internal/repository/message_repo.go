package repository

import (
	"context"
	"time"

	"github.com/damoang/angple-market/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository message ledger data access
type MessageRepository interface {
	// Append persists msg and moves the conversation's updated_at in one transaction
	Append(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id uint64) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uint64, page, pageSize int) ([]*domain.Message, int64, error)
	// LastByConversations returns the newest message per conversation, keyed by conversation id
	LastByConversations(ctx context.Context, conversationIDs []uint64) (map[uint64]*domain.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Sender").Create(msg).Error; err != nil {
			return err
		}
		// 대화방 최근 활동 시각 갱신 (뒤로 가지 않음)
		return tx.Model(&domain.Conversation{}).
			Where("id = ? AND updated_at < ?", msg.ConversationID, msg.CreatedAt).
			UpdateColumn("updated_at", msg.CreatedAt).Error
	})
}

func (r *messageRepository) FindByID(ctx context.Context, id uint64) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Preload("Sender").Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint64, page, pageSize int) ([]*domain.Message, int64, error) {
	var messages []*domain.Message
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pastEnd(page, pageSize, total) {
		return []*domain.Message{}, total, nil
	}

	offset := (page - 1) * pageSize
	err := db.Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).Limit(pageSize).
		Find(&messages).Error
	return messages, total, err
}

func (r *messageRepository) LastByConversations(ctx context.Context, conversationIDs []uint64) (map[uint64]*domain.Message, error) {
	result := make(map[uint64]*domain.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}

	db := r.db.WithContext(ctx)
	latest := db.Model(&domain.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")

	var messages []*domain.Message
	if err := db.Preload("Sender").Where("id IN (?)", latest).Find(&messages).Error; err != nil {
		return nil, err
	}
	for _, m := range messages {
		result[m.ConversationID] = m
	}
	return result, nil
}
