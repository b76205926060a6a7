package domain

// Category product taxonomy entry
type Category struct {
	Name string `gorm:"column:name;size:100;uniqueIndex;not null" json:"name"`
	ID   uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
}

func (Category) TableName() string {
	return "categories"
}

// CreateCategoryRequest 카테고리 생성 요청
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}
