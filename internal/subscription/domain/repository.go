package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Subscription, error)
	// FindIDsByState returns ids of subscriptions in one of states whose starts is at or before startsBefore.
	FindIDsByState(ctx context.Context, db *gorm.DB, states []State, startsBefore time.Time) ([]snowflake.ID, error)
	FindByInitialOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, state State) ([]Subscription, error)
	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
