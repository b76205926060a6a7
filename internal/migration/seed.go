package migration

import (
	"errors"
	"fmt"

	"github.com/damoang/angple-market/internal/domain"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedPassword password of the demo accounts
const SeedPassword = "1234"

// Seed inserts demo users, categories and products.
// It is a no-op when the first demo user already exists.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&domain.User{}).Where("email = ?", "juan@example.com").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		juan := &domain.User{Email: "juan@example.com", PasswordHash: string(hash), FirstName: "Juan", LastName: "Prueba"}
		maria := &domain.User{Email: "maria@example.com", PasswordHash: string(hash), FirstName: "María", LastName: "Prueba"}
		if err := tx.Create([]*domain.User{juan, maria}).Error; err != nil {
			return err
		}

		electronics, err := firstOrCreateCategory(tx, "Electrónica")
		if err != nil {
			return err
		}
		home, err := firstOrCreateCategory(tx, "Hogar")
		if err != nil {
			return err
		}

		products := []*domain.Product{
			{
				Name:        "Cafetera Express",
				Description: "Acero inoxidable 15 bar",
				Price:       "129999.00",
				Stock:       8,
				SellerID:    maria.ID,
				Categories:  []*domain.Category{electronics, home},
			},
			{
				Name:        "Auriculares Bluetooth",
				Description: "Cancelación de ruido",
				Price:       "59999.00",
				Stock:       12,
				SellerID:    juan.ID,
				Categories:  []*domain.Category{electronics},
			},
		}
		return tx.Omit("Seller", "Categories.*").Create(products).Error
	})
}

func firstOrCreateCategory(tx *gorm.DB, name string) (*domain.Category, error) {
	var c domain.Category
	err := tx.Where("name = ?", name).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	c = domain.Category{Name: name}
	if err := tx.Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
