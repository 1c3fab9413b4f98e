// Package catalog looks up product prices and stock at order time.
package catalog

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Product is a row of the products table.
type Product struct {
	ID     string  `gorm:"primaryKey;column:id"`
	Name   string  `gorm:"column:name"`
	Price  float64 `gorm:"column:price"`
	Stock  int     `gorm:"column:stock"`
	Active bool    `gorm:"column:active"`
}

func (Product) TableName() string { return "products" }

// InStock reports whether the product can be ordered.
func (p Product) InStock() bool { return p.Active && p.Stock > 0 }

// Catalog returns the products found for ids, keyed by id. Unknown ids are absent.
type Catalog interface {
	Lookup(ctx context.Context, ids []string) (map[string]Product, error)
}

// Open connects to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Postgres reads products through gorm.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres returns a Catalog backed by db.
func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// Lookup implements Catalog.
func (p *Postgres) Lookup(ctx context.Context, ids []string) (map[string]Product, error) {
	var list []Product
	if err := p.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("lookup products: %w", err)
	}
	out := make(map[string]Product, len(list))
	for _, pr := range list {
		out[pr.ID] = pr
	}
	return out, nil
}

// Static is an in-memory Catalog for local runs and tests.
type Static map[string]Product

// Lookup implements Catalog.
func (s Static) Lookup(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
