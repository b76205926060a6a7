package domain

import (
	"strconv"
	"time"
)

// Conversation direct thread between exactly two users.
// UpdatedAt is the last activity time and moves on every appended message.
type Conversation struct {
	CreatedAt    time.Time                 `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time                 `gorm:"column:updated_at;index" json:"updatedAt"`
	LastMessage  *Message                  `gorm:"-" json:"lastMessage"`
	PairKey      string                    `gorm:"column:pair_key;size:64;uniqueIndex;not null" json:"-"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"-"`
	ID           uint64                    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant membership row; its existence is the authorization fact
type ConversationParticipant struct {
	CreatedAt      time.Time `gorm:"column:created_at"`
	User           *User     `gorm:"foreignKey:UserID"`
	ConversationID uint64    `gorm:"column:conversation_id;primaryKey;autoIncrement:false"`
	UserID         uint64    `gorm:"column:user_id;primaryKey;autoIncrement:false;index"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// PairKey canonical key for an unordered pair of users: "min:max"
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(a, 10) + ":" + strconv.FormatUint(b, 10)
}

// HasParticipant reports whether userID is one of the loaded participants
func (c *Conversation) HasParticipant(userID uint64) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// CreateConversationRequest get-or-create request
type CreateConversationRequest struct {
	OtherUserID uint64 `json:"otherUserId"`
}

// ConversationResponse conversation as seen by one of its participants
type ConversationResponse struct {
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	OtherUser    *User     `json:"otherUser,omitempty"`
	LastMessage  *Message  `json:"lastMessage"`
	Participants []*User   `json:"participants"`
	ID           uint64    `json:"id"`
}

// GetOrCreateResponse result of POST /api/conversations
type GetOrCreateResponse struct {
	Conversation *ConversationResponse `json:"conversation"`
	Existing     bool                  `json:"existing"`
}

// ToResponse converts a Conversation for the viewer
func (c *Conversation) ToResponse(viewerID uint64) *ConversationResponse {
	resp := &ConversationResponse{
		ID:           c.ID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		LastMessage:  c.LastMessage,
		Participants: make([]*User, 0, len(c.Participants)),
	}
	for _, p := range c.Participants {
		if p.User == nil {
			continue
		}
		resp.Participants = append(resp.Participants, p.User)
		if p.UserID != viewerID {
			resp.OtherUser = p.User
		}
	}
	return resp
}
