package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Item, error)
	// FindOverdueRecurring returns draft recurring orders whose billing period ended at or before now.
	FindOverdueRecurring(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
	FindSubscriptionIDs(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]snowflake.ID, error)
	// FindRecurringForSubscription returns the recurring order in state that bills subscriptionID
	// for the period containing at.
	FindRecurringForSubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, state State, at time.Time) (*Order, error)
	UpdateState(ctx context.Context, db *gorm.DB, order *Order) error
	UpdateTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal, updatedAt time.Time) error
}
