package main

import (
	"flag"

	"github.com/damoang/angple-market/internal/config"
	"github.com/damoang/angple-market/internal/database"
	"github.com/damoang/angple-market/internal/migration"
	pkglogger "github.com/damoang/angple-market/pkg/logger"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "configs/config.local.yaml", "config file path")
	seed := flag.Bool("seed", false, "insert demo users, categories and products")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	dotenvFiles := config.LoadDotEnv(".")

	cfg, err := config.Load(*configPath)
	if err != nil {
		pkglogger.Fatal("Failed to load config: %v", err)
	}
	pkglogger.InitStructured(cfg.Env)
	pkglogger.Info("loaded env files: %v", dotenvFiles)

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}

	db, err := database.Open(cfg.Database, logLevel)
	if err != nil {
		pkglogger.Fatal("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		pkglogger.Fatal("Failed to get underlying DB: %v", err)
	}
	defer sqlDB.Close()

	if err := migration.Run(db); err != nil {
		pkglogger.Fatal("Migration failed: %v", err)
	}
	pkglogger.Info("Schema is up to date (%d tables)", len(migration.Models()))

	if !*seed {
		return
	}
	if err := migration.Seed(db); err != nil {
		pkglogger.Fatal("Seed failed: %v", err)
	}
	pkglogger.Info("Seed complete: juan@example.com / maria@example.com (password %q)", migration.SeedPassword)
}
