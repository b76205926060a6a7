package domain

import "time"

// User marketplace account
type User struct {
	CreatedAt    time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"-"`
	Email        string    `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	FirstName    string    `gorm:"column:first_name;size:100" json:"firstName,omitempty"`
	LastName     string    `gorm:"column:last_name;size:100" json:"lastName,omitempty"`
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName returns "First Last", falling back to the email
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// RegisterRequest 회원가입 요청
type RegisterRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest 로그인 요청
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse token plus the authenticated profile
type AuthResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
	Token     string    `json:"token"`
}
