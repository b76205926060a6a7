package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/middleware"
	"github.com/damoang/angple-market/internal/service"
	"github.com/gin-gonic/gin"
)

// ConversationHandler handles conversations and their messages
type ConversationHandler struct {
	conversations service.ConversationService
	messages      service.MessageService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(conversations service.ConversationService, messages service.MessageService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

// List handles GET /api/conversations
// @Summary 내 대화 목록 (최근 활동순)
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} common.APIResponse{data=[]domain.ConversationResponse}
// @Router /api/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	me := middleware.GetUserID(c)
	convs, err := h.conversations.List(c.Request.Context(), me)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]*domain.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, conv.ToResponse(me))
	}
	common.SuccessResponse(c, resp)
}

// Create handles POST /api/conversations
// @Summary 대화 시작 (있으면 기존 대화 반환)
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body domain.CreateConversationRequest true "상대 사용자"
// @Success 200 {object} common.APIResponse{data=domain.GetOrCreateResponse}
// @Success 201 {object} common.APIResponse{data=domain.GetOrCreateResponse}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	var req domain.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "otherUserId is required", err)
		return
	}

	me := middleware.GetUserID(c)
	conv, existing, err := h.conversations.GetOrCreate(c.Request.Context(), me, req.OtherUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	c.JSON(status, common.APIResponse{
		Success: true,
		Data: &domain.GetOrCreateResponse{
			Conversation: conv.ToResponse(me),
			Existing:     existing,
		},
	})
}

// ListMessages handles GET /api/conversations/:id/messages
// @Summary 메시지 목록 (오래된 순)
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Param page query int false "페이지 (기본 1)"
// @Param pageSize query int false "페이지 크기 (기본 20, 최대 100)"
// @Success 200 {object} common.APIResponse{data=domain.MessagePage}
// @Failure 403 {object} common.APIResponse
// @Router /api/conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	page, err := h.messages.List(c.Request.Context(), id, middleware.GetUserID(c),
		queryInt(c, "page"), queryInt(c, "pageSize"))
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, page)
}

// SendMessage handles POST /api/conversations/:id/messages
// @Summary 메시지 보내기
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Param request body domain.SendMessageRequest true "메시지 내용"
// @Success 201 {object} common.APIResponse{data=domain.Message}
// @Failure 400 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/conversations/{id}/messages [post]
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// an empty body is left to the service, which checks membership before content
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body", err)
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), id, middleware.GetUserID(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	common.CreatedResponse(c, msg)
}
