package repository

import (
	"context"

	"github.com/damoang/angple-market/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository catalog data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product, categories []*domain.Category) error
	Delete(ctx context.Context, id uint64) error
	FindByID(ctx context.Context, id uint64) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Omit("Seller", "Categories.*").Create(product).Error
}

// Update saves scalar fields; a non-nil categories slice replaces the associations
func (r *productRepository) Update(ctx context.Context, product *domain.Product, categories []*domain.Category) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(product).
			Select("name", "description", "price", "stock", "updated_at").
			Omit(clause.Associations).
			Updates(product).Error; err != nil {
			return err
		}
		if categories == nil {
			return nil
		}
		return tx.Model(product).Association("Categories").Replace(categories)
	})
}

func (r *productRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product := &domain.Product{ID: id}
		if err := tx.Model(product).Association("Categories").Clear(); err != nil {
			return err
		}
		return tx.Delete(product).Error
	})
}

func (r *productRepository) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).
		Preload("Seller").
		Preload("Categories").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns products newest first, optionally restricted to one category
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	var products []*domain.Product
	var total int64

	db := r.db.WithContext(ctx)
	byCategory := func(tx *gorm.DB) *gorm.DB {
		if filter.CategoryID == 0 {
			return tx
		}
		return tx.Where("products.id IN (?)",
			db.Table("product_categories").Select("product_id").Where("category_id = ?", filter.CategoryID))
	}

	if err := db.Model(&domain.Product{}).Scopes(byCategory).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pastEnd(filter.Page, filter.PageSize, total) {
		return []*domain.Product{}, total, nil
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := db.Scopes(byCategory).
		Preload("Seller").
		Preload("Categories").
		Order("products.created_at DESC, products.id DESC").
		Offset(offset).Limit(filter.PageSize).
		Find(&products).Error
	return products, total, err
}
