// Package domain contains persistence models for initial and recurring orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/price"
)

type OrderType string

const (
	OrderTypeInitial   OrderType = "initial"
	OrderTypeRecurring OrderType = "recurring"
)

type State string

const (
	StateDraft     State = "draft"
	StatePlaced    State = "placed"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

type ItemType string

const (
	ItemTypePurchasedEntity ItemType = "purchased_entity"
	ItemTypeRecurring       ItemType = "recurring"
)

// Order is either a one-time purchase or one billing period's charge.
type Order struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	Type               OrderType       `json:"type" gorm:"type:text;not null"`
	State              State           `json:"state" gorm:"type:text;not null"`
	CustomerID         snowflake.ID    `json:"customer_id" gorm:"not null"`
	StoreID            snowflake.ID    `json:"store_id" gorm:"not null"`
	PaymentMethodID    *snowflake.ID   `json:"payment_method_id,omitempty"`
	BillingPeriodStart *time.Time      `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time      `json:"billing_period_end,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount" gorm:"type:numeric(20,6);not null"`
	CurrencyCode       string          `json:"currency_code" gorm:"type:text;not null"`
	PlacedAt           *time.Time      `json:"placed_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CanceledAt         *time.Time      `json:"canceled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []Item `json:"items,omitempty" gorm:"-"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

func (o Order) IsRecurring() bool {
	return o.Type == OrderTypeRecurring
}

// BillingPeriod returns the period a recurring order covers.
func (o Order) BillingPeriod() (billingscheduledomain.BillingPeriod, error) {
	if o.BillingPeriodStart == nil || o.BillingPeriodEnd == nil {
		return billingscheduledomain.BillingPeriod{}, billingscheduledomain.ErrInvalidPeriod
	}
	return billingscheduledomain.NewBillingPeriod(*o.BillingPeriodStart, *o.BillingPeriodEnd)
}

func (o Order) Total() price.Price {
	return price.Price{Number: o.TotalAmount, CurrencyCode: o.CurrencyCode}
}

// Item is an order line.
type Item struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID            snowflake.ID    `json:"order_id" gorm:"not null;index"`
	Type               ItemType        `json:"type" gorm:"type:text;not null"`
	Position           int             `json:"position" gorm:"not null"`
	Title              string          `json:"title" gorm:"type:text;not null"`
	PurchasedEntityID  *snowflake.ID   `json:"purchased_entity_id,omitempty"`
	SubscriptionID     *snowflake.ID   `json:"subscription_id,omitempty" gorm:"index"`
	Quantity           decimal.Decimal `json:"quantity" gorm:"type:numeric(20,6);not null"`
	UnitPrice          decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,6);not null"`
	TotalPrice         decimal.Decimal `json:"total_price" gorm:"type:numeric(20,6);not null"`
	CurrencyCode       string          `json:"currency_code" gorm:"type:text;not null"`
	BillingPeriodStart *time.Time      `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time      `json:"billing_period_end,omitempty"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Item) TableName() string { return "order_items" }

func (i Item) Total() price.Price {
	return price.Price{Number: i.TotalPrice, CurrencyCode: i.CurrencyCode}
}
