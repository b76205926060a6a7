package domain

import "time"

// Message append-only conversation entry, ordered by (created_at, id)
type Message struct {
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_messages_conversation_created,priority:2" json:"createdAt"`
	Sender         *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string    `gorm:"column:content;type:text;not null" json:"content"`
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"column:conversation_id;not null;index:idx_messages_conversation_created,priority:1" json:"conversationId"`
	SenderID       uint64    `gorm:"column:sender_id;not null;index" json:"senderId"`
}

func (Message) TableName() string {
	return "messages"
}

// SendMessageRequest message body; blank content is rejected by the service
type SendMessageRequest struct {
	Content string `json:"content"`
}

// MessagePage one page of a conversation's history, oldest first
type MessagePage struct {
	Items      []*Message `json:"items"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int64      `json:"total"`
	TotalPages int        `json:"totalPages"`
}
