package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, type, state, billing_schedule_id, customer_id, store_id, payment_method_id,
		purchased_entity_id, title, unit_price, currency_code, quantity, trial_starts, trial_ends,
		starts, ends, initial_order_id, cancel_at_period_end, canceled_at, created_at, updated_at
		FROM subscriptions`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, type, state, billing_schedule_id, customer_id, store_id,
		 payment_method_id, purchased_entity_id, title, unit_price, currency_code, quantity,
		 trial_starts, trial_ends, starts, ends, initial_order_id, cancel_at_period_end, canceled_at,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Type,
		s.State,
		s.BillingScheduleID,
		s.CustomerID,
		s.StoreID,
		s.PaymentMethodID,
		s.PurchasedEntityID,
		s.Title,
		s.UnitPrice,
		s.CurrencyCode,
		s.Quantity,
		s.TrialStarts,
		s.TrialEnds,
		s.Starts,
		s.Ends,
		s.InitialOrderID,
		s.CancelAtPeriodEnd,
		s.CanceledAt,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Subscription, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id IN ? ORDER BY id ASC`, ids).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindIDsByState(ctx context.Context, db *gorm.DB, states []domain.State, startsBefore time.Time) ([]snowflake.ID, error) {
	if len(states) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM subscriptions
		 WHERE state IN ? AND starts <= ?
		 ORDER BY starts ASC, id ASC`,
		states,
		startsBefore,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindByInitialOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, state domain.State) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE initial_order_id = ? AND state = ? ORDER BY id ASC`,
		orderID,
		state,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET state = ?, ends = ?, cancel_at_period_end = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		s.State,
		s.Ends,
		s.CancelAtPeriodEnd,
		s.CanceledAt,
		s.UpdatedAt,
		s.ID,
	).Error
}
