// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurring/internal/price"
)

// State represents lifecycle states for a subscription.
type State string

const (
	StatePending  State = "pending"
	StateTrial    State = "trial"
	StateActive   State = "active"
	StateCanceled State = "canceled"
	StateExpired  State = "expired"
)

// Subscription captures a customer's right to be billed periodically.
type Subscription struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	Type              string          `json:"type" gorm:"type:text;not null"`
	State             State           `json:"state" gorm:"type:text;not null"`
	BillingScheduleID snowflake.ID    `json:"billing_schedule_id" gorm:"not null;index"`
	CustomerID        snowflake.ID    `json:"customer_id" gorm:"not null"`
	StoreID           snowflake.ID    `json:"store_id" gorm:"not null"`
	PaymentMethodID   *snowflake.ID   `json:"payment_method_id,omitempty"`
	PurchasedEntityID snowflake.ID    `json:"purchased_entity_id" gorm:"not null"`
	Title             string          `json:"title" gorm:"type:text;not null"`
	UnitPrice         decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,6);not null"`
	CurrencyCode      string          `json:"currency_code" gorm:"type:text;not null"`
	Quantity          decimal.Decimal `json:"quantity" gorm:"type:numeric(20,6);not null"`
	TrialStarts       *time.Time      `json:"trial_starts,omitempty"`
	TrialEnds         *time.Time      `json:"trial_ends,omitempty"`
	Starts            time.Time       `json:"starts" gorm:"not null"`
	Ends              *time.Time      `json:"ends,omitempty"`
	InitialOrderID    snowflake.ID    `json:"initial_order_id" gorm:"not null;index"`
	CancelAtPeriodEnd bool            `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CanceledAt        *time.Time      `json:"canceled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Price returns the unit price in the subscription currency.
func (s Subscription) Price() price.Price {
	return price.Price{Number: s.UnitPrice, CurrencyCode: s.CurrencyCode}
}

// Validate checks the rules every stored subscription satisfies.
func (s Subscription) Validate() error {
	if s.InitialOrderID == 0 {
		return ErrInitialOrderRequired
	}
	if s.BillingScheduleID == 0 {
		return ErrInvalidBillingSchedule
	}
	if !s.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if s.State == StateTrial {
		if s.TrialStarts == nil || s.TrialEnds == nil {
			return ErrInvalidTrial
		}
		if s.TrialEnds.After(s.Starts) || s.TrialEnds.Before(*s.TrialStarts) {
			return ErrInvalidTrial
		}
	}
	return nil
}
