package repository

import (
	"context"

	"github.com/damoang/angple-market/internal/domain"
	"gorm.io/gorm"
)

// ConversationRepository conversation directory data access
type ConversationRepository interface {
	// CreateWithParticipants inserts the conversation and both membership rows atomically.
	// A concurrent insert of the same pair fails with a duplicate key error.
	CreateWithParticipants(ctx context.Context, conv *domain.Conversation, userIDs ...uint64) error
	FindByID(ctx context.Context, id uint64) (*domain.Conversation, error)
	FindByPairKey(ctx context.Context, pairKey string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID uint64) ([]*domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uint64) (bool, error)
	// ParticipantIDs returns the member ids; empty for an unknown conversation
	ParticipantIDs(ctx context.Context, conversationID uint64) ([]uint64, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) CreateWithParticipants(ctx context.Context, conv *domain.Conversation, userIDs ...uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conv).Error; err != nil {
			return err
		}
		participants := make([]domain.ConversationParticipant, 0, len(userIDs))
		for _, id := range userIDs {
			participants = append(participants, domain.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         id,
			})
		}
		if err := tx.Omit("User").Create(&participants).Error; err != nil {
			return err
		}
		conv.Participants = participants
		return nil
	})
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint64) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindByPairKey(ctx context.Context, pairKey string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Where("pair_key = ?", pairKey).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByUser returns the user's conversations, most recently active first
func (r *conversationRepository) ListByUser(ctx context.Context, userID uint64) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.updated_at DESC, conversations.id DESC").
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *conversationRepository) ParticipantIDs(ctx context.Context, conversationID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
