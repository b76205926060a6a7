package service

import (
	"context"
	"fmt"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/repository"
	"github.com/damoang/angple-market/pkg/logger"
)

// ConversationService conversation directory
type ConversationService interface {
	// GetOrCreate returns the single conversation between me and other.
	// existing is true when it was already there (including a lost creation race).
	GetOrCreate(ctx context.Context, me, other uint64) (conv *domain.Conversation, existing bool, err error)
	List(ctx context.Context, me uint64) ([]*domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uint64) (bool, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	msgRepo  repository.MessageRepository
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	msgRepo repository.MessageRepository,
) ConversationService {
	return &conversationService{
		convRepo: convRepo,
		userRepo: userRepo,
		msgRepo:  msgRepo,
	}
}

func (s *conversationService) GetOrCreate(ctx context.Context, me, other uint64) (*domain.Conversation, bool, error) {
	if other == 0 {
		return nil, false, fmt.Errorf("%w: otherUserId is required", common.ErrInvalidInput)
	}
	if other == me {
		return nil, false, common.ErrSelfConversation
	}

	ok, err := s.userRepo.Exists(ctx, other)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, common.ErrUserNotFound
	}

	pairKey := domain.PairKey(me, other)
	conv, err := s.convRepo.FindByPairKey(ctx, pairKey)
	switch {
	case err == nil:
		conversationsCreatedTotal.WithLabelValues(resultExisting).Inc()
		return s.withLastMessage(ctx, conv), true, nil
	case !repository.IsNotFound(err):
		return nil, false, err
	}

	conv = &domain.Conversation{PairKey: pairKey}
	if err := s.convRepo.CreateWithParticipants(ctx, conv, me, other); err != nil {
		if !repository.IsDuplicateKey(err) {
			return nil, false, err
		}
		// 다른 요청이 먼저 생성함: 승자를 다시 읽는다
		winner, findErr := s.convRepo.FindByPairKey(ctx, pairKey)
		if findErr != nil {
			return nil, false, findErr
		}
		conversationsCreatedTotal.WithLabelValues(resultRace).Inc()
		logger.GetLogger().Debug().Str("pair_key", pairKey).Uint64("conversation_id", winner.ID).
			Msg("conversation creation race resolved")
		return s.withLastMessage(ctx, winner), true, nil
	}

	conversationsCreatedTotal.WithLabelValues(resultCreated).Inc()
	created, err := s.convRepo.FindByID(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return created, false, nil
}

func (s *conversationService) List(ctx context.Context, me uint64) ([]*domain.Conversation, error) {
	convs, err := s.convRepo.ListByUser(ctx, me)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	last, err := s.msgRepo.LastByConversations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		c.LastMessage = last[c.ID]
	}
	return convs, nil
}

func (s *conversationService) IsParticipant(ctx context.Context, conversationID, userID uint64) (bool, error) {
	return s.convRepo.IsParticipant(ctx, conversationID, userID)
}

// withLastMessage attaches the newest message; a lookup failure only drops the preview
func (s *conversationService) withLastMessage(ctx context.Context, conv *domain.Conversation) *domain.Conversation {
	last, err := s.msgRepo.LastByConversations(ctx, []uint64{conv.ID})
	if err != nil {
		logger.GetLogger().Warn().Err(err).Uint64("conversation_id", conv.ID).Msg("last message lookup failed")
		return conv
	}
	conv.LastMessage = last[conv.ID]
	return conv
}
