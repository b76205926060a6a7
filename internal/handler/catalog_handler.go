package handler

import (
	"net/http"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/middleware"
	"github.com/damoang/angple-market/internal/service"
	"github.com/damoang/angple-market/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// ProductHandler handles catalog listings
type ProductHandler struct {
	service service.ProductService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(service service.ProductService) *ProductHandler {
	return &ProductHandler{service: service}
}

// List handles GET /api/products
// @Summary 상품 목록 (최신순)
// @Tags products
// @Produce json
// @Param categoryId query int false "카테고리 ID"
// @Param page query int false "페이지"
// @Param pageSize query int false "페이지 크기"
// @Success 200 {object} common.APIResponse{data=[]domain.Product}
// @Router /api/products [get]
func (h *ProductHandler) List(c *gin.Context) {
	filter := domain.ProductFilter{
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
	}
	categoryID, err := ginutil.QueryUint64(c, "categoryId")
	if err != nil {
		badRequest(c, "Invalid categoryId", nil)
		return
	}
	filter.CategoryID = categoryID

	products, total, effective, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessWithMeta(c, products, common.NewMeta(effective.Page, effective.PageSize, total))
}

// Get handles GET /api/products/:id
// @Summary 상품 상세 (판매자 정보 포함)
// @Tags products
// @Produce json
// @Param id path int true "상품 ID"
// @Success 200 {object} common.APIResponse{data=domain.Product}
// @Failure 404 {object} common.APIResponse
// @Router /api/products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, product)
}

// Create handles POST /api/products
// @Summary 상품 등록
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body domain.CreateProductRequest true "상품 정보"
// @Success 201 {object} common.APIResponse{data=domain.Product}
// @Router /api/products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	var req domain.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, description and price are required", err)
		return
	}
	product, err := h.service.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	common.CreatedResponse(c, product)
}

// Update handles PUT /api/products/:id
// @Summary 상품 수정 (판매자 본인만)
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "상품 ID"
// @Param request body domain.UpdateProductRequest true "수정할 필드"
// @Success 200 {object} common.APIResponse{data=domain.Product}
// @Failure 403 {object} common.APIResponse
// @Router /api/products/{id} [put]
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req domain.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	product, err := h.service.Update(c.Request.Context(), id, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, product)
}

// Delete handles DELETE /api/products/:id
// @Summary 상품 삭제 (판매자 본인만)
// @Tags products
// @Security BearerAuth
// @Param id path int true "상품 ID"
// @Success 204
// @Failure 403 {object} common.APIResponse
// @Router /api/products/{id} [delete]
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CategoryHandler handles the product taxonomy
type CategoryHandler struct {
	service service.CategoryService
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(service service.CategoryService) *CategoryHandler {
	return &CategoryHandler{service: service}
}

// List handles GET /api/categories
// @Summary 카테고리 목록
// @Tags categories
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.Category}
// @Router /api/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	categories, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, categories)
}

// Create handles POST /api/categories
// @Summary 카테고리 생성
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body domain.CreateCategoryRequest true "카테고리 이름"
// @Success 201 {object} common.APIResponse{data=domain.Category}
// @Failure 409 {object} common.APIResponse
// @Router /api/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req domain.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required", err)
		return
	}
	category, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	common.CreatedResponse(c, category)
}
