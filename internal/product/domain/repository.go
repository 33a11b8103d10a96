package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, variation *Variation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Variation, error)
	FindBySKU(ctx context.Context, db *gorm.DB, sku string) (*Variation, error)
}
