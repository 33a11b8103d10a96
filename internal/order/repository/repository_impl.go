package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurring/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const (
	orderColumns = `SELECT id, type, state, customer_id, store_id, payment_method_id, billing_period_start,
		billing_period_end, total_amount, currency_code, placed_at, completed_at, canceled_at, created_at, updated_at
		FROM orders`
	itemColumns = `SELECT id, order_id, type, position, title, purchased_entity_id, subscription_id, quantity,
		unit_price, total_price, currency_code, billing_period_start, billing_period_end, created_at, updated_at
		FROM order_items`
)

func (r *repo) Insert(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, type, state, customer_id, store_id, payment_method_id, billing_period_start,
		 billing_period_end, total_amount, currency_code, placed_at, completed_at, canceled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.Type,
		o.State,
		o.CustomerID,
		o.StoreID,
		o.PaymentMethodID,
		o.BillingPeriodStart,
		o.BillingPeriodEnd,
		o.TotalAmount,
		o.CurrencyCode,
		o.PlacedAt,
		o.CompletedAt,
		o.CanceledAt,
		o.CreatedAt,
		o.UpdatedAt,
	).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.Item) error {
	for _, item := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_items (id, order_id, type, position, title, purchased_entity_id, subscription_id,
			 quantity, unit_price, total_price, currency_code, billing_period_start, billing_period_end,
			 created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.OrderID,
			item.Type,
			item.Position,
			item.Title,
			item.PurchasedEntityID,
			item.SubscriptionID,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			item.CurrencyCode,
			item.BillingPeriodStart,
			item.BillingPeriodEnd,
			item.CreatedAt,
			item.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db, orderColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db, orderColumns+` WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&o).Error; err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(itemColumns+` WHERE order_id = ? ORDER BY position ASC, id ASC`, orderID).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindOverdueRecurring(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM orders
		 WHERE type = ? AND state = ? AND billing_period_end <= ?
		 ORDER BY billing_period_end ASC, id ASC`,
		domain.OrderTypeRecurring,
		domain.StateDraft,
		now,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindSubscriptionIDs(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT subscription_id FROM order_items
		 WHERE order_id = ? AND subscription_id IS NOT NULL
		 ORDER BY subscription_id ASC`,
		orderID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindRecurringForSubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, state domain.State, at time.Time) (*domain.Order, error) {
	return r.findOne(ctx, db,
		`SELECT o.id, o.type, o.state, o.customer_id, o.store_id, o.payment_method_id, o.billing_period_start,
		 o.billing_period_end, o.total_amount, o.currency_code, o.placed_at, o.completed_at, o.canceled_at,
		 o.created_at, o.updated_at
		 FROM orders o
		 JOIN order_items i ON i.order_id = o.id
		 WHERE i.subscription_id = ? AND o.type = ? AND o.state = ?
		   AND o.billing_period_start <= ? AND o.billing_period_end > ?
		 ORDER BY o.billing_period_start DESC, o.id DESC
		 LIMIT 1`,
		subscriptionID,
		domain.OrderTypeRecurring,
		state,
		at,
		at,
	)
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET state = ?, placed_at = ?, completed_at = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		o.State,
		o.PlacedAt,
		o.CompletedAt,
		o.CanceledAt,
		o.UpdatedAt,
		o.ID,
	).Error
}

func (r *repo) UpdateTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET total_amount = ?, updated_at = ? WHERE id = ?`,
		total,
		updatedAt,
		orderID,
	).Error
}
