package jobs

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	"github.com/smallbiznis/recurring/internal/recurringorder"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ActivationParams struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Subscriptions subscriptiondomain.Repository
	Lifecycle     subscriptiondomain.Service
	Orders        recurringorder.Manager
}

// ActivationProcessor turns a pending subscription active and makes sure
// its current recurring order exists.
type ActivationProcessor struct {
	db            *gorm.DB
	log           *zap.Logger
	subscriptions subscriptiondomain.Repository
	lifecycle     subscriptiondomain.Service
	orders        recurringorder.Manager
}

func NewActivationProcessor(p ActivationParams) *ActivationProcessor {
	return &ActivationProcessor{
		db:            p.DB,
		log:           p.Log.Named("jobs.activation"),
		subscriptions: p.Subscriptions,
		lifecycle:     p.Lifecycle,
		orders:        p.Orders,
	}
}

func (p *ActivationProcessor) Handle(ctx context.Context, job *queuedomain.Job) queuedomain.Result {
	var payload queuedomain.SubscriptionPayload
	if err := job.DecodePayload(&payload); err != nil {
		return resultFor(err)
	}
	return resultFor(p.Activate(ctx, payload.SubscriptionID))
}

// Activate moves a pending subscription to active, then ensures its order in
// a second transaction. A failure of the second step leaves the subscription
// active.
func (p *ActivationProcessor) Activate(ctx context.Context, id snowflake.ID) error {
	var activated *subscriptiondomain.Subscription
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := p.subscriptions.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.State != subscriptiondomain.StatePending {
			return subscriptiondomain.ErrInvalidState
		}
		activated, err = p.lifecycle.Transition(ctx, tx, id, subscriptiondomain.StateActive)
		return err
	})
	if err != nil {
		return err
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := p.orders.EnsureOrder(ctx, tx, activated)
		if err != nil {
			return err
		}
		p.log.Info("jobs.subscription.activated",
			zap.String("subscription_id", id.String()),
			zap.String("order_id", order.ID.String()),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure order for subscription %s: %w", id, err)
	}
	return nil
}
