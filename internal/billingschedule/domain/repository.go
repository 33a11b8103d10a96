package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, schedule *BillingSchedule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingSchedule, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*BillingSchedule, error)
	List(ctx context.Context, db *gorm.DB) ([]BillingSchedule, error)
}
