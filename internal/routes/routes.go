package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/config"
	"github.com/damoang/angple-market/internal/handler"
	"github.com/damoang/angple-market/internal/middleware"
	"github.com/damoang/angple-market/internal/repository"
	"github.com/damoang/angple-market/internal/service"
	"github.com/damoang/angple-market/internal/ws"
	"github.com/damoang/angple-market/pkg/cache"
	"github.com/damoang/angple-market/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Deps everything the router needs. Redis and Hub may be nil.
type Deps struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Hub        *ws.Hub
	JWTManager *jwt.Manager
	Config     *config.Config
}

// Handlers groups the HTTP handlers mounted by Setup
type Handlers struct {
	Auth          *handler.AuthHandler
	Conversations *handler.ConversationHandler
	Products      *handler.ProductHandler
	Categories    *handler.CategoryHandler
	WS            *handler.WSHandler
}

// NewRouter builds repositories, services and handlers on top of deps and returns
// a gin engine with the full middleware chain and all routes mounted.
func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Config

	userRepo := repository.NewUserRepository(deps.DB)
	convRepo := repository.NewConversationRepository(deps.DB)
	msgRepo := repository.NewMessageRepository(deps.DB)
	productRepo := repository.NewProductRepository(deps.DB)
	categoryRepo := repository.NewCategoryRepository(deps.DB)

	var cacheService cache.Service
	if deps.Redis != nil {
		cacheService = cache.NewService(deps.Redis)
	}

	var notifier service.MessageNotifier
	if deps.Hub != nil {
		notifier = deps.Hub
	}

	authService := service.NewAuthService(userRepo, deps.JWTManager, cacheService)
	convService := service.NewConversationService(convRepo, userRepo, msgRepo)
	msgService := service.NewMessageService(convRepo, msgRepo, notifier)

	h := Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Conversations: handler.NewConversationHandler(convService, msgService),
		Products:      handler.NewProductHandler(service.NewProductService(productRepo, categoryRepo)),
		Categories:    handler.NewCategoryHandler(service.NewCategoryService(categoryRepo)),
	}
	if deps.Hub != nil {
		h.WS = handler.NewWSHandler(deps.Hub, cfg.CORS.AllowOrigins)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(corsConfig(cfg.CORS.AllowOrigins)))
	router.Use(middleware.Metrics())
	if cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerMinute = cfg.RateLimit.RequestsPerMinute
		router.Use(middleware.RateLimit(deps.Redis, rl))
	}

	SetupOps(router, deps.DB)
	Setup(router, h, deps.JWTManager)
	return router
}

func corsConfig(allowOrigins string) cors.Config {
	origins := splitAndTrim(allowOrigins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetupOps mounts health, metrics and swagger
func SetupOps(router *gin.Engine, db *gorm.DB) {
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}
		c.JSON(status, gin.H{
			"status":  http.StatusText(status),
			"service": "angple-market",
			"db":      dbStatus,
			"time":    time.Now().Unix(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Setup configures all API routes
func Setup(router *gin.Engine, h Handlers, jwtManager *jwt.Manager) {
	auth := middleware.JWTAuth(jwtManager)
	api := router.Group("/api")

	// 인증
	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.GET("/me", auth, h.Auth.Me)

	api.GET("/users/me", auth, h.Auth.Me)

	// 대화 / 메시지 (참여자만)
	conversations := api.Group("/conversations", auth)
	conversations.GET("", h.Conversations.List)
	conversations.POST("", h.Conversations.Create)
	conversations.GET("/:id/messages", h.Conversations.ListMessages)
	conversations.POST("/:id/messages", h.Conversations.SendMessage)

	// 상품 (조회 공개, 수정은 판매자만)
	products := api.Group("/products")
	products.GET("", h.Products.List)
	products.GET("/:id", h.Products.Get)
	products.POST("", auth, h.Products.Create)
	products.PUT("/:id", auth, h.Products.Update)
	products.DELETE("/:id", auth, h.Products.Delete)

	categories := api.Group("/categories")
	categories.GET("", h.Categories.List)
	categories.POST("", auth, h.Categories.Create)

	if h.WS != nil {
		router.GET("/ws/messages", middleware.JWTAuthWS(jwtManager), h.WS.Connect)
	}

	router.NoRoute(func(c *gin.Context) {
		common.ErrorResponse(c, http.StatusNotFound, "route not found", nil)
	})
}
