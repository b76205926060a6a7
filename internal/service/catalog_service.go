package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/repository"
)

// ProductService catalog listings
type ProductService interface {
	Create(ctx context.Context, sellerID uint64, req *domain.CreateProductRequest) (*domain.Product, error)
	Update(ctx context.Context, id, userID uint64, req *domain.UpdateProductRequest) (*domain.Product, error)
	Delete(ctx context.Context, id, userID uint64) error
	Get(ctx context.Context, id uint64) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, domain.ProductFilter, error)
}

// CategoryService product taxonomy
type CategoryService interface {
	List(ctx context.Context) ([]*domain.Category, error)
	Create(ctx context.Context, req *domain.CreateCategoryRequest) (*domain.Category, error)
}

type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
}

// NewProductService creates a new ProductService
func NewProductService(productRepo repository.ProductRepository, categoryRepo repository.CategoryRepository) ProductService {
	return &productService{productRepo: productRepo, categoryRepo: categoryRepo}
}

func (s *productService) Create(ctx context.Context, sellerID uint64, req *domain.CreateProductRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Price == "" {
		return nil, fmt.Errorf("%w: name and price are required", common.ErrInvalidInput)
	}

	categories, err := s.resolveCategories(ctx, req.CategoryIDs)
	if err != nil {
		return nil, err
	}

	product := &domain.Product{
		SellerID:    sellerID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       string(req.Price),
		Categories:  categories,
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must not be negative", common.ErrInvalidInput)
		}
		product.Stock = *req.Stock
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}
	return s.Get(ctx, product.ID)
}

func (s *productService) Update(ctx context.Context, id, userID uint64, req *domain.UpdateProductRequest) (*domain.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.SellerID != userID {
		return nil, common.ErrForbidden
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", common.ErrInvalidInput)
		}
		product.Name = name
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if *req.Price == "" {
			return nil, fmt.Errorf("%w: price must not be empty", common.ErrInvalidInput)
		}
		product.Price = string(*req.Price)
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must not be negative", common.ErrInvalidInput)
		}
		product.Stock = *req.Stock
	}

	var categories []*domain.Category
	if req.CategoryIDs != nil {
		if categories, err = s.resolveCategories(ctx, req.CategoryIDs); err != nil {
			return nil, err
		}
	}

	product.UpdatedAt = time.Now()
	if err := s.productRepo.Update(ctx, product, categories); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *productService) Delete(ctx context.Context, id, userID uint64) error {
	product, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if product.SellerID != userID {
		return common.ErrForbidden
	}
	return s.productRepo.Delete(ctx, id)
}

func (s *productService) Get(ctx context.Context, id uint64) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, common.ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

// List returns one page of products and the effective filter after clamping
func (s *productService) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, domain.ProductFilter, error) {
	filter.Page, filter.PageSize = normalizePaging(filter.Page, filter.PageSize)
	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, filter, err
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, total, filter, nil
}

// resolveCategories returns an empty (non-nil) slice for no ids, ErrCategoryNotFound for unknown ones
func (s *productService) resolveCategories(ctx context.Context, ids []uint64) ([]*domain.Category, error) {
	if len(ids) == 0 {
		return []*domain.Category{}, nil
	}
	unique := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	categories, err := s.categoryRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(categories) != len(unique) {
		return nil, common.ErrCategoryNotFound
	}
	return categories, nil
}

type categoryService struct {
	repo repository.CategoryRepository
}

// NewCategoryService creates a new CategoryService
func NewCategoryService(repo repository.CategoryRepository) CategoryService {
	return &categoryService{repo: repo}
}

func (s *categoryService) List(ctx context.Context) ([]*domain.Category, error) {
	categories, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []*domain.Category{}
	}
	return categories, nil
}

func (s *categoryService) Create(ctx context.Context, req *domain.CreateCategoryRequest) (*domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrInvalidInput)
	}

	category := &domain.Category{Name: name}
	if err := s.repo.Create(ctx, category); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, common.ErrCategoryExists
		}
		return nil, err
	}
	return category, nil
}
