// Package recurringorder materializes the recurring orders that bill
// subscriptions period by period.
package recurringorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/billingschedule/period"
	"github.com/smallbiznis/recurring/internal/billingschedule/prorater"
	"github.com/smallbiznis/recurring/internal/clock"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	"github.com/smallbiznis/recurring/internal/price"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager creates, renews and closes recurring orders. Every method runs on tx.
type Manager interface {
	// StartRecurring creates the first recurring order of a subscription.
	StartRecurring(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) (*orderdomain.Order, error)
	// EnsureOrder returns the open recurring order covering now, creating it when missing.
	EnsureOrder(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) (*orderdomain.Order, error)
	// RenewOrder creates the order for the period after previous. It returns nil when no
	// subscription billed by previous is still active.
	RenewOrder(ctx context.Context, tx *gorm.DB, previous *orderdomain.Order) (*orderdomain.Order, error)
	// CloseOrder totals a draft recurring order and completes it.
	CloseOrder(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (*orderdomain.Order, error)
}

var (
	ErrBillingScheduleNotFound = errors.New("billing_schedule_not_found")
	ErrNoSubscriptions         = errors.New("no_subscriptions")
)

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Rounder      price.Rounder
	OrderRepo    orderdomain.Repository
	ScheduleRepo billingscheduledomain.Repository
	Subscription subscriptiondomain.Repository
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type manager struct {
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	rounder      price.Rounder
	orderRepo    orderdomain.Repository
	scheduleRepo billingscheduledomain.Repository
	subRepo      subscriptiondomain.Repository
	metrics      *obsmetrics.Metrics
}

func New(p Params) Manager {
	return &manager{
		log:          p.Log.Named("recurringorder.manager"),
		genID:        p.GenID,
		clock:        p.Clock,
		rounder:      p.Rounder,
		orderRepo:    p.OrderRepo,
		scheduleRepo: p.ScheduleRepo,
		subRepo:      p.Subscription,
		metrics:      p.Metrics,
	}
}

// plan is what a schedule needs to price one period.
type plan struct {
	schedule  *billingscheduledomain.BillingSchedule
	generator period.Generator
	prorater  prorater.Prorater
}

func (m *manager) planFor(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) (*plan, error) {
	schedule, err := m.scheduleRepo.FindByID(ctx, tx, subscription.BillingScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("subscription %s: %w", subscription.ID, ErrBillingScheduleNotFound)
	}
	generator, err := period.ForSchedule(schedule)
	if err != nil {
		return nil, err
	}
	p, err := prorater.ForKind(schedule.Prorater, m.rounder)
	if err != nil {
		return nil, err
	}
	return &plan{schedule: schedule, generator: generator, prorater: p}, nil
}

// chargeRule picks the span an item bills for when its order covers billed.
// first marks the subscription's first period, where starts may fall mid-period.
type chargeRule func(p *plan, billed billingscheduledomain.BillingPeriod, starts time.Time, first bool) (charge billingscheduledomain.BillingPeriod, prorate bool, err error)

var chargeRules = map[billingscheduledomain.BillingType]chargeRule{
	billingscheduledomain.BillingTypePostpaid: func(_ *plan, billed billingscheduledomain.BillingPeriod, starts time.Time, first bool) (billingscheduledomain.BillingPeriod, bool, error) {
		if !first || !starts.After(billed.Start) {
			return billed, false, nil
		}
		charge, err := billingscheduledomain.NewBillingPeriod(starts, billed.End)
		return charge, true, err
	},
	billingscheduledomain.BillingTypePrepaid: func(p *plan, billed billingscheduledomain.BillingPeriod, starts time.Time, _ bool) (billingscheduledomain.BillingPeriod, bool, error) {
		charge, err := p.generator.Next(starts, billed)
		return charge, false, err
	},
}

func (m *manager) StartRecurring(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) (*orderdomain.Order, error) {
	p, err := m.planFor(ctx, tx, subscription)
	if err != nil {
		return nil, err
	}
	billed, err := p.generator.First(subscription.Starts)
	if err != nil {
		return nil, err
	}
	return m.createOrder(ctx, tx, p, billed, []*subscriptiondomain.Subscription{subscription}, true)
}

func (m *manager) EnsureOrder(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) (*orderdomain.Order, error) {
	now := m.clock.Now()
	existing, err := m.orderRepo.FindRecurringForSubscription(ctx, tx, subscription.ID, orderdomain.StateDraft, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	p, err := m.planFor(ctx, tx, subscription)
	if err != nil {
		return nil, err
	}
	billed, err := p.generator.First(subscription.Starts)
	if err != nil {
		return nil, err
	}
	first := true
	for !billed.End.After(now) {
		if billed, err = p.generator.Next(subscription.Starts, billed); err != nil {
			return nil, err
		}
		first = false
	}

	// A subscription starting in the future is billed from its first period.
	if !billed.Contains(now) {
		existing, err = m.orderRepo.FindRecurringForSubscription(ctx, tx, subscription.ID, orderdomain.StateDraft, billed.Start)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	return m.createOrder(ctx, tx, p, billed, []*subscriptiondomain.Subscription{subscription}, first)
}

func (m *manager) RenewOrder(ctx context.Context, tx *gorm.DB, previous *orderdomain.Order) (*orderdomain.Order, error) {
	if previous == nil || !previous.IsRecurring() {
		return nil, orderdomain.ErrNotRecurring
	}
	previousPeriod, err := previous.BillingPeriod()
	if err != nil {
		return nil, err
	}

	ids, err := m.orderRepo.FindSubscriptionIDs(ctx, tx, previous.ID)
	if err != nil {
		return nil, err
	}
	subscriptions, err := m.subRepo.FindByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	active := make([]*subscriptiondomain.Subscription, 0, len(subscriptions))
	for i := range subscriptions {
		if subscriptions[i].State == subscriptiondomain.StateActive {
			active = append(active, &subscriptions[i])
		}
	}
	if len(active) == 0 {
		m.log.Info("recurringorder.renew.skipped",
			zap.String("order_id", previous.ID.String()),
			zap.String("reason", "no active subscriptions"),
		)
		return nil, nil
	}

	p, err := m.planFor(ctx, tx, active[0])
	if err != nil {
		return nil, err
	}
	billed, err := p.generator.Next(active[0].Starts, previousPeriod)
	if err != nil {
		return nil, err
	}

	existing, err := m.orderRepo.FindRecurringForSubscription(ctx, tx, active[0].ID, orderdomain.StateDraft, billed.Start)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	return m.createOrder(ctx, tx, p, billed, active, false)
}

func (m *manager) CloseOrder(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (*orderdomain.Order, error) {
	if order == nil || !order.IsRecurring() {
		return nil, orderdomain.ErrNotRecurring
	}
	if order.State != orderdomain.StateDraft {
		return order, nil
	}

	items, err := m.orderRepo.FindItems(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	total := price.Zero(order.CurrencyCode)
	for _, item := range items {
		if total, err = total.Add(item.Total()); err != nil {
			return nil, fmt.Errorf("order %s: %w", order.ID, err)
		}
	}

	now := m.clock.Now()
	if err := m.orderRepo.UpdateTotal(ctx, tx, order.ID, total.Number, now); err != nil {
		return nil, err
	}
	order.TotalAmount = total.Number
	order.State = orderdomain.StateCompleted
	order.CompletedAt = &now
	order.UpdatedAt = now
	if err := m.orderRepo.UpdateState(ctx, tx, order); err != nil {
		return nil, err
	}
	order.Items = items

	m.metrics.RecordOrderClosed(ctx, string(order.Type))
	m.log.Info("recurringorder.order.closed",
		zap.String("order_id", order.ID.String()),
		zap.String("total", total.String()),
	)
	return order, nil
}

func (m *manager) createOrder(
	ctx context.Context,
	tx *gorm.DB,
	p *plan,
	billed billingscheduledomain.BillingPeriod,
	subscriptions []*subscriptiondomain.Subscription,
	first bool,
) (*orderdomain.Order, error) {
	if len(subscriptions) == 0 {
		return nil, ErrNoSubscriptions
	}
	rule, ok := chargeRules[p.schedule.BillingType]
	if !ok {
		return nil, billingscheduledomain.ErrInvalidBillingType
	}

	owner := subscriptions[0]
	now := m.clock.Now()
	order := &orderdomain.Order{
		ID:                 m.genID.Generate(),
		Type:               orderdomain.OrderTypeRecurring,
		State:              orderdomain.StateDraft,
		CustomerID:         owner.CustomerID,
		StoreID:            owner.StoreID,
		PaymentMethodID:    owner.PaymentMethodID,
		BillingPeriodStart: timePtr(billed.Start),
		BillingPeriodEnd:   timePtr(billed.End),
		CurrencyCode:       owner.CurrencyCode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	total := price.Zero(owner.CurrencyCode)
	items := make([]orderdomain.Item, 0, len(subscriptions))
	for i, subscription := range subscriptions {
		charge, prorate, err := rule(p, billed, subscription.Starts, first)
		if err != nil {
			return nil, err
		}
		unit := subscription.Price()
		if prorate {
			if unit, err = p.prorater.ProrateOrderItem(unit, charge, billed); err != nil {
				return nil, err
			}
		}
		lineTotal, err := m.rounder.Round(unit.Multiply(subscription.Quantity))
		if err != nil {
			return nil, err
		}
		if total, err = total.Add(lineTotal); err != nil {
			return nil, fmt.Errorf("subscription %s: %w", subscription.ID, err)
		}

		subscriptionID := subscription.ID
		purchasedEntityID := subscription.PurchasedEntityID
		items = append(items, orderdomain.Item{
			ID:                 m.genID.Generate(),
			OrderID:            order.ID,
			Type:               orderdomain.ItemTypeRecurring,
			Position:           i,
			Title:              subscription.Title,
			PurchasedEntityID:  &purchasedEntityID,
			SubscriptionID:     &subscriptionID,
			Quantity:           subscription.Quantity,
			UnitPrice:          unit.Number,
			TotalPrice:         lineTotal.Number,
			CurrencyCode:       lineTotal.CurrencyCode,
			BillingPeriodStart: timePtr(charge.Start),
			BillingPeriodEnd:   timePtr(charge.End),
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	order.TotalAmount = total.Number

	if err := m.orderRepo.Insert(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := m.orderRepo.InsertItems(ctx, tx, items); err != nil {
		return nil, err
	}
	order.Items = items

	m.metrics.RecordOrderCreated(ctx, string(order.Type))
	m.log.Info("recurringorder.order.created",
		zap.String("order_id", order.ID.String()),
		zap.String("subscription_id", owner.ID.String()),
		zap.Int("item_count", len(items)),
		zap.Time("period_start", billed.Start),
		zap.Time("period_end", billed.End),
		zap.String("total", total.String()),
	)
	return order, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
