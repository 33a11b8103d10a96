package jobs

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	"github.com/smallbiznis/recurring/internal/recurringorder"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OrderParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Orders  orderdomain.Repository
	Manager recurringorder.Manager
}

type orderProcessor struct {
	db      *gorm.DB
	log     *zap.Logger
	orders  orderdomain.Repository
	manager recurringorder.Manager
}

// withRecurringOrder locks the order and hands it to fn inside one transaction.
func (p *orderProcessor) withRecurringOrder(ctx context.Context, id snowflake.ID, fn func(tx *gorm.DB, order *orderdomain.Order) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := p.orders.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if !order.IsRecurring() {
			return orderdomain.ErrNotRecurring
		}
		return fn(tx, order)
	})
}

func decodeOrderID(job *queuedomain.Job) (snowflake.ID, error) {
	var payload queuedomain.OrderPayload
	if err := job.DecodePayload(&payload); err != nil {
		return 0, err
	}
	return payload.OrderID, nil
}

// OrderCloseProcessor completes a recurring order whose period is over.
type OrderCloseProcessor struct {
	orderProcessor
}

func NewOrderCloseProcessor(p OrderParams) *OrderCloseProcessor {
	return &OrderCloseProcessor{orderProcessor{
		db:      p.DB,
		log:     p.Log.Named("jobs.order_close"),
		orders:  p.Orders,
		manager: p.Manager,
	}}
}

func (p *OrderCloseProcessor) Handle(ctx context.Context, job *queuedomain.Job) queuedomain.Result {
	id, err := decodeOrderID(job)
	if err != nil {
		return resultFor(err)
	}
	return resultFor(p.Close(ctx, id))
}

// Close is a no-op for orders that already left draft.
func (p *OrderCloseProcessor) Close(ctx context.Context, id snowflake.ID) error {
	return p.withRecurringOrder(ctx, id, func(tx *gorm.DB, order *orderdomain.Order) error {
		_, err := p.manager.CloseOrder(ctx, tx, order)
		return err
	})
}

// OrderRenewProcessor opens the order for the period after a recurring order.
type OrderRenewProcessor struct {
	orderProcessor
}

func NewOrderRenewProcessor(p OrderParams) *OrderRenewProcessor {
	return &OrderRenewProcessor{orderProcessor{
		db:      p.DB,
		log:     p.Log.Named("jobs.order_renew"),
		orders:  p.Orders,
		manager: p.Manager,
	}}
}

func (p *OrderRenewProcessor) Handle(ctx context.Context, job *queuedomain.Job) queuedomain.Result {
	id, err := decodeOrderID(job)
	if err != nil {
		return resultFor(err)
	}
	_, err = p.Renew(ctx, id)
	return resultFor(err)
}

// Renew returns the next order, or nil when nothing on the order is still active.
func (p *OrderRenewProcessor) Renew(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	var next *orderdomain.Order
	err := p.withRecurringOrder(ctx, id, func(tx *gorm.DB, order *orderdomain.Order) error {
		var err error
		next, err = p.manager.RenewOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	if next != nil {
		p.log.Info("jobs.order.renewed",
			zap.String("order_id", id.String()),
			zap.String("next_order_id", next.ID.String()),
		)
	}
	return next, nil
}
