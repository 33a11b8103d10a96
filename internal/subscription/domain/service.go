package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Create stores a new subscription using tx.
	Create(ctx context.Context, tx *gorm.DB, subscription *Subscription) error
	GetByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// Transition moves a subscription to target. A nil tx runs in its own transaction.
	Transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, target State) (*Subscription, error)
	// ScheduleCancellation cancels an active subscription once its current billing period ends.
	ScheduleCancellation(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// ApplyScheduledChanges cancels the subscriptions among ids that asked to end with the
	// period and returns the ids that remain active.
	ApplyScheduledChanges(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]snowflake.ID, error)
}

var (
	ErrSubscriptionNotFound   = errors.New("subscription_not_found")
	ErrInvalidState           = errors.New("invalid_state")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrInvalidTrial           = errors.New("invalid_trial")
	ErrInvalidQuantity        = errors.New("invalid_quantity")
	ErrInvalidBillingSchedule = errors.New("invalid_billing_schedule")
	ErrInitialOrderRequired   = errors.New("initial_order_required")
)
