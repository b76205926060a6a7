package migration_test

import (
	"testing"

	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/migration"
	"github.com/damoang/angple-market/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, migration.Seed(db))
	require.NoError(t, migration.Seed(db))

	var users, categories, products int64
	db.Model(&domain.User{}).Count(&users)
	db.Model(&domain.Category{}).Count(&categories)
	db.Model(&domain.Product{}).Count(&products)
	assert.Equal(t, int64(2), users)
	assert.Equal(t, int64(2), categories)
	assert.Equal(t, int64(2), products)

	var coffee domain.Product
	require.NoError(t, db.Preload("Categories").Where("name = ?", "Cafetera Express").First(&coffee).Error)
	assert.Len(t, coffee.Categories, 2)
	assert.Equal(t, "129999.00", coffee.Price)
}
