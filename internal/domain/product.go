package domain

import (
	"time"

	"gorm.io/gorm"
)

// Product catalog listing owned by a seller
type Product struct {
	CreatedAt   time.Time   `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt   time.Time   `gorm:"column:updated_at" json:"updatedAt"`
	Seller      *User       `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Name        string      `gorm:"column:name;size:200;not null" json:"name"`
	Description string      `gorm:"column:description;type:text" json:"description"`
	Price       string      `gorm:"column:price;type:decimal(12,2);not null" json:"price"`
	Categories  []*Category `gorm:"many2many:product_categories" json:"categories"`
	ID          uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SellerID    uint64      `gorm:"column:seller_id;not null;index" json:"sellerId"`
	Stock       int         `gorm:"column:stock;not null;default:0" json:"stock"`
}

func (Product) TableName() string {
	return "products"
}

// AfterFind keeps the two-decimal format regardless of how the driver returns decimals
func (p *Product) AfterFind(_ *gorm.DB) error {
	if normalized, err := NormalizePrice(p.Price); err == nil {
		p.Price = normalized
	}
	return nil
}

// CreateProductRequest 상품 등록 요청
type CreateProductRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Price       Price    `json:"price" binding:"required"`
	Stock       *int     `json:"stock"`
	CategoryIDs []uint64 `json:"categoryIds"`
}

// UpdateProductRequest partial update; nil fields are left untouched
type UpdateProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *Price   `json:"price"`
	Stock       *int     `json:"stock"`
	CategoryIDs []uint64 `json:"categoryIds"`
}

// ProductFilter catalog listing filter
type ProductFilter struct {
	CategoryID uint64
	Page       int
	PageSize   int
}
