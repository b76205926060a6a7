package service

import (
	"context"
	"slices"
	"strings"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/repository"
)

// MessageNotifier pushes a hint about a new message to online recipients.
// Delivery is best effort; clients still poll.
type MessageNotifier interface {
	NotifyMessage(recipients []uint64, msg *domain.Message)
}

// MessageService message ledger
type MessageService interface {
	Append(ctx context.Context, conversationID, senderID uint64, content string) (*domain.Message, error)
	List(ctx context.Context, conversationID, requesterID uint64, page, pageSize int) (*domain.MessagePage, error)
}

type messageService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	notifier MessageNotifier
}

// NewMessageService creates a new MessageService. notifier may be nil.
func NewMessageService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	notifier MessageNotifier,
) MessageService {
	return &messageService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		notifier: notifier,
	}
}

// Append authorizes the sender, then persists the trimmed content.
// An unknown conversation is reported the same way as a foreign one.
func (s *messageService) Append(ctx context.Context, conversationID, senderID uint64, content string) (*domain.Message, error) {
	participants, err := s.convRepo.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(participants, senderID) {
		return nil, common.ErrNotParticipant
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, common.ErrEmptyContent
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	if err := s.msgRepo.Append(ctx, msg); err != nil {
		return nil, err
	}
	messagesAppendedTotal.Inc()

	saved, err := s.msgRepo.FindByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		recipients := slices.DeleteFunc(participants, func(id uint64) bool { return id == senderID })
		s.notifier.NotifyMessage(recipients, saved)
	}
	return saved, nil
}

func (s *messageService) List(ctx context.Context, conversationID, requesterID uint64, page, pageSize int) (*domain.MessagePage, error) {
	ok, err := s.convRepo.IsParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotParticipant
	}

	page, pageSize = normalizePaging(page, pageSize)
	items, total, err := s.msgRepo.ListByConversation(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Message{}
	}

	return &domain.MessagePage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
