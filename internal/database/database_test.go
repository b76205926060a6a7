package database

import (
	"path/filepath"
	"testing"

	"github.com/damoang/angple-market/internal/config"
	"github.com/damoang/angple-market/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpen_SQLiteFile(t *testing.T) {
	cfg := config.Default().Database
	cfg.Driver = "sqlite"
	cfg.Path = filepath.Join(t.TempDir(), "market.db")

	db, err := Open(cfg, gormlogger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Run(db))
	assert.True(t, db.Migrator().HasTable("messages"))
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := config.Default().Database
	cfg.Driver = "postgres"

	_, err := Open(cfg, gormlogger.Silent)
	assert.Error(t, err)
}
