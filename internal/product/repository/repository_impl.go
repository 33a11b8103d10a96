package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, variation *domain.Variation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_variations (id, sku, title, unit_price, currency_code, subscription_type,
		 billing_schedule_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		variation.ID,
		variation.SKU,
		variation.Title,
		variation.UnitPrice,
		variation.CurrencyCode,
		variation.SubscriptionType,
		variation.BillingScheduleID,
		variation.Active,
		variation.CreatedAt,
		variation.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Variation, error) {
	var v domain.Variation
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku, title, unit_price, currency_code, subscription_type, billing_schedule_id,
		 active, created_at, updated_at
		 FROM product_variations WHERE id = ?`,
		id,
	).Scan(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == 0 {
		return nil, nil
	}
	return &v, nil
}

func (r *repo) FindBySKU(ctx context.Context, db *gorm.DB, sku string) (*domain.Variation, error) {
	var v domain.Variation
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku, title, unit_price, currency_code, subscription_type, billing_schedule_id,
		 active, created_at, updated_at
		 FROM product_variations WHERE sku = ?`,
		sku,
	).Scan(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == 0 {
		return nil, nil
	}
	return &v, nil
}
