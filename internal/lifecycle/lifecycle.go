// Package lifecycle starts and stops subscriptions as their initial orders
// are placed or canceled.
package lifecycle

import (
	"context"
	"fmt"

	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/billingschedule/period"
	"github.com/smallbiznis/recurring/internal/clock"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	productdomain "github.com/smallbiznis/recurring/internal/product/domain"
	"github.com/smallbiznis/recurring/internal/recurringorder"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("lifecycle",
	fx.Provide(
		fx.Annotate(New, fx.As(new(orderdomain.TransitionHooks))),
	),
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Products      productdomain.Repository
	Schedules     billingscheduledomain.Repository
	Subscriptions subscriptiondomain.Repository
	Lifecycle     subscriptiondomain.Service
	Orders        recurringorder.Manager
}

type Hooks struct {
	log           *zap.Logger
	clock         clock.Clock
	products      productdomain.Repository
	schedules     billingscheduledomain.Repository
	subscriptions subscriptiondomain.Repository
	lifecycle     subscriptiondomain.Service
	orders        recurringorder.Manager
}

func New(p Params) *Hooks {
	return &Hooks{
		log:           p.Log.Named("lifecycle"),
		clock:         p.Clock,
		products:      p.Products,
		schedules:     p.Schedules,
		subscriptions: p.Subscriptions,
		lifecycle:     p.Lifecycle,
		orders:        p.Orders,
	}
}

// OnPlace creates one subscription per subscribable item of a placed initial order.
func (h *Hooks) OnPlace(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	if order == nil || order.IsRecurring() || order.PaymentMethodID == nil {
		return nil
	}

	for i := range order.Items {
		item := &order.Items[i]
		variation, err := h.subscribableVariation(ctx, tx, order, item)
		if err != nil {
			return err
		}
		if variation == nil {
			continue
		}
		if err := h.subscribe(ctx, tx, order, item, variation); err != nil {
			return fmt.Errorf("order %s item %s: %w", order.ID, item.ID, err)
		}
	}
	return nil
}

// subscribableVariation returns the item's purchased variation when it carries
// both a subscription type and a billing schedule, nil otherwise.
func (h *Hooks) subscribableVariation(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, item *orderdomain.Item) (*productdomain.Variation, error) {
	if item.PurchasedEntityID == nil {
		return nil, nil
	}
	variation, err := h.products.FindByID(ctx, tx, *item.PurchasedEntityID)
	if err != nil {
		return nil, err
	}
	if variation == nil {
		h.log.Warn("lifecycle.variation.missing",
			zap.String("order_id", order.ID.String()),
			zap.String("item_id", item.ID.String()),
			zap.String("purchased_entity_id", item.PurchasedEntityID.String()),
		)
		return nil, nil
	}
	if !variation.IsSubscribable() {
		return nil, nil
	}
	return variation, nil
}

func (h *Hooks) subscribe(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, item *orderdomain.Item, variation *productdomain.Variation) error {
	schedule, err := h.schedules.FindByID(ctx, tx, *variation.BillingScheduleID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return billingscheduledomain.ErrBillingScheduleNotFound
	}

	now := h.clock.Now()
	subscription := &subscriptiondomain.Subscription{
		Type:              *variation.SubscriptionType,
		State:             subscriptiondomain.StatePending,
		BillingScheduleID: schedule.ID,
		CustomerID:        order.CustomerID,
		StoreID:           order.StoreID,
		PaymentMethodID:   order.PaymentMethodID,
		PurchasedEntityID: variation.ID,
		Title:             item.Title,
		UnitPrice:         item.UnitPrice,
		CurrencyCode:      item.CurrencyCode,
		Quantity:          item.Quantity,
		InitialOrderID:    order.ID,
	}

	if schedule.AllowTrials {
		generator, err := period.ForSchedule(schedule)
		if err != nil {
			return err
		}
		trial, err := generator.Trial(now)
		if err != nil {
			return err
		}
		subscription.State = subscriptiondomain.StateTrial
		subscription.TrialStarts = &trial.Start
		subscription.TrialEnds = &trial.End
		subscription.Starts = trial.End
		if err := h.lifecycle.Create(ctx, tx, subscription); err != nil {
			return err
		}
	} else {
		subscription.State = subscriptiondomain.StateActive
		subscription.Starts = now
		if err := h.lifecycle.Create(ctx, tx, subscription); err != nil {
			return err
		}
		if _, err := h.orders.EnsureOrder(ctx, tx, subscription); err != nil {
			return err
		}
	}

	h.log.Info("lifecycle.subscription.created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("state", string(subscription.State)),
		zap.Time("starts", subscription.Starts),
	)
	return nil
}

// OnCancel cancels the active subscriptions an initial order started, as long
// as one of its items is still subscribable.
func (h *Hooks) OnCancel(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	if order == nil || order.IsRecurring() {
		return nil
	}

	eligible := false
	for i := range order.Items {
		variation, err := h.subscribableVariation(ctx, tx, order, &order.Items[i])
		if err != nil {
			return err
		}
		if variation != nil {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil
	}

	subscriptions, err := h.subscriptions.FindByInitialOrder(ctx, tx, order.ID, subscriptiondomain.StateActive)
	if err != nil {
		return err
	}
	for _, subscription := range subscriptions {
		if _, err := h.lifecycle.Transition(ctx, tx, subscription.ID, subscriptiondomain.StateCanceled); err != nil {
			return fmt.Errorf("cancel subscription %s: %w", subscription.ID, err)
		}
	}
	return nil
}
