package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damoang/angple-market/internal/config"
	"github.com/damoang/angple-market/internal/database"
	"github.com/damoang/angple-market/internal/middleware"
	"github.com/damoang/angple-market/internal/migration"
	"github.com/damoang/angple-market/internal/routes"
	"github.com/damoang/angple-market/internal/ws"
	"github.com/damoang/angple-market/pkg/jwt"
	pkglogger "github.com/damoang/angple-market/pkg/logger"
	pkgredis "github.com/damoang/angple-market/pkg/redis"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"
)

// @title           Angple Market API
// @version         1.0
// @description     Marketplace accounts, catalog and buyer/seller messaging
//
// @host            localhost:8082
// @BasePath        /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

const shutdownTimeout = 10 * time.Second

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv(".")

	// 설정 로드
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		pkglogger.Fatal("Failed to load config: %v", err)
	}

	// 로거 초기화
	pkglogger.InitStructured(cfg.Env)
	pkglogger.Info("APP_ENV=%s, config=%s, loaded env files: %v", cfg.Env, configPath, dotenvFiles)
	config.LogResolved(cfg)

	if err := cfg.Validate(); err != nil {
		pkglogger.Fatal("Invalid config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "local-development-secret"
		pkglogger.Warn("jwt.secret is empty, using an insecure development secret")
	}
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	// DB 연결
	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := database.Open(cfg.Database, logLevel)
	if err != nil {
		pkglogger.Fatal("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to %s", cfg.Database.Driver)
	if err := migration.Run(db); err != nil {
		pkglogger.Fatal("Migration failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis 연결 (선택)
	var redisClient *goredis.Client
	redisOpts := pkgredis.Options{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	if redisOpts.Enabled() {
		redisClient, err = pkgredis.NewClient(ctx, redisOpts)
		if err != nil {
			pkglogger.Warn("Failed to connect to Redis: %v (continuing without Redis)", err)
			redisClient = nil
		} else {
			pkglogger.Info("Connected to Redis")
		}
	}

	// WebSocket Hub
	wsHub := ws.NewHub(redisClient)
	go wsHub.Run()

	if sqlDB, err := db.DB(); err == nil {
		go middleware.ObserveDBStats(ctx, sqlDB, 15*time.Second)
	}

	router := routes.NewRouter(routes.Deps{
		DB:         db,
		Redis:      redisClient,
		Hub:        wsHub,
		JWTManager: jwt.NewManager(cfg.JWT.Secret, cfg.TokenTTL()),
		Config:     cfg,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		pkglogger.Info("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkglogger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	pkglogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		pkglogger.Error("Server shutdown error: %v", err)
	}
	wsHub.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	pkglogger.Info("Server stopped")
}
