package store

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"freshmart/backend/internal/domain"
)

// DemoProducts is the starter catalog used by the in-memory store and by
// `seed demo`. Ids are stable so demo orders can reference them.
func DemoProducts(now time.Time) []domain.Product {
	cost := func(v float64) *float64 { return &v }
	products := []domain.Product{
		{ID: "prd-apple-gala", Name: "Gala Apples", Category: "produce", Unit: "kg", Price: 3.49, PurchasePrice: cost(1.90), Stock: 140},
		{ID: "prd-banana", Name: "Bananas", Category: "produce", Unit: "kg", Price: 1.29, PurchasePrice: cost(0.62), Stock: 220},
		{ID: "prd-spinach", Name: "Baby Spinach 250g", Category: "produce", Unit: "bag", Price: 2.99, PurchasePrice: cost(1.45), Stock: 60},
		{ID: "prd-milk-1l", Name: "Whole Milk 1L", Category: "dairy", Unit: "bottle", Price: 1.49, PurchasePrice: cost(0.95), Stock: 180},
		{ID: "prd-cheddar", Name: "Aged Cheddar 200g", Category: "dairy", Unit: "pack", Price: 4.79, PurchasePrice: cost(2.80), Stock: 75},
		{ID: "prd-yogurt", Name: "Greek Yogurt 500g", Category: "dairy", Unit: "tub", Price: 3.29, PurchasePrice: cost(1.70), Stock: 90},
		{ID: "prd-sourdough", Name: "Sourdough Loaf", Category: "bakery", Unit: "loaf", Price: 4.50, PurchasePrice: cost(1.95), Stock: 40},
		{ID: "prd-croissant", Name: "Butter Croissant", Category: "bakery", Unit: "piece", Price: 1.80, PurchasePrice: cost(0.70), Stock: 64},
		{ID: "prd-coffee", Name: "Ground Coffee 500g", Category: "pantry", Unit: "bag", Price: 8.99, PurchasePrice: cost(5.10), Stock: 55},
		{ID: "prd-pasta", Name: "Penne Pasta 1kg", Category: "pantry", Unit: "bag", Price: 2.19, PurchasePrice: cost(1.05), Stock: 130},
		{ID: "prd-olive-oil", Name: "Extra Virgin Olive Oil 750ml", Category: "pantry", Unit: "bottle", Price: 9.49, PurchasePrice: cost(6.20), Stock: 48},
		{ID: "prd-sparkling", Name: "Sparkling Water 6x1L", Category: "beverages", Unit: "pack", Price: 4.99, PurchasePrice: cost(2.60), Stock: 70},
	}
	for i := range products {
		products[i].IsActive = true
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
	}
	return products
}

// DemoUsers builds one account per role for dev and demo mode. Passwords come
// from SEED_ADMIN_PASSWORD, SEED_EMPLOYEE_PASSWORD, SEED_FINANCE_PASSWORD and
// SEED_CUSTOMER_PASSWORD, falling back to dev defaults with a warning.
func DemoUsers(now time.Time) ([]domain.UserAccount, error) {
	seeds := []struct {
		username string
		envKey   string
		fallback string
		role     domain.Role
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"employee", "SEED_EMPLOYEE_PASSWORD", "employee123", domain.RoleEmployee},
		{"finance", "SEED_FINANCE_PASSWORD", "finance123", domain.RoleFinanceManager},
		{"customer", "SEED_CUSTOMER_PASSWORD", "customer123", domain.RoleCustomer},
	}

	users := make([]domain.UserAccount, 0, len(seeds))
	defaults := false
	for _, seed := range seeds {
		password := os.Getenv(seed.envKey)
		if password == "" {
			password = seed.fallback
			defaults = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", seed.username, err)
		}
		users = append(users, domain.UserAccount{
			Username:  seed.username,
			Password:  string(hash),
			Role:      seed.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	if defaults {
		log.Warn().Msg("seed users are using default dev credentials; set SEED_*_PASSWORD to override")
	}
	return users, nil
}
