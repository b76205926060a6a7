package migration

import (
	"github.com/damoang/angple-market/internal/domain"
	"gorm.io/gorm"
)

// Models every table owned by the service, in dependency order
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Category{},
		&domain.Product{},
		&domain.Conversation{},
		&domain.ConversationParticipant{},
		&domain.Message{},
	}
}

// Run executes AutoMigrate for all tables.
// 테이블 없으면 생성, 있으면 누락 컬럼/인덱스만 추가
func Run(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
