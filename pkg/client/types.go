package client

import "time"

// User public profile as returned by the API
type User struct {
	CreatedAt time.Time `json:"createdAt"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	ID        uint64    `json:"id"`
}

// DisplayName returns "First Last", falling back to the email
func (u *User) DisplayName() string {
	if u == nil {
		return "?"
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Message confirmed conversation entry
type Message struct {
	CreatedAt      time.Time `json:"createdAt"`
	Sender         *User     `json:"sender,omitempty"`
	Content        string    `json:"content"`
	ID             int64     `json:"id"`
	ConversationID uint64    `json:"conversationId"`
	SenderID       uint64    `json:"senderId"`
}

// Conversation as seen by the session user
type Conversation struct {
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	OtherUser    *User     `json:"otherUser,omitempty"`
	LastMessage  *Message  `json:"lastMessage"`
	Participants []*User   `json:"participants"`
	ID           uint64    `json:"id"`
}

// MessagePage one page of history, oldest first
type MessagePage struct {
	Items      []*Message `json:"items"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int64      `json:"total"`
	TotalPages int        `json:"totalPages"`
}

// AuthResult token plus profile from register/login
type AuthResult struct {
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
	Token     string    `json:"token"`
}

// RegisterInput registration payload
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type getOrCreateResult struct {
	Conversation *Conversation `json:"conversation"`
	Existing     bool          `json:"existing"`
}
