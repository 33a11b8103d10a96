package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Variation is a purchasable item. Variations that carry both a subscription
// type and a billing schedule start a subscription when bought.
type Variation struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	SKU               string          `json:"sku" gorm:"column:sku;type:text;not null;uniqueIndex"`
	Title             string          `json:"title" gorm:"type:text;not null"`
	UnitPrice         decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,6);not null"`
	CurrencyCode      string          `json:"currency_code" gorm:"type:text;not null"`
	SubscriptionType  *string         `json:"subscription_type,omitempty" gorm:"type:text"`
	BillingScheduleID *snowflake.ID   `json:"billing_schedule_id,omitempty"`
	Active            bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Variation) TableName() string { return "product_variations" }

// IsSubscribable reports whether buying the variation creates a subscription.
func (v Variation) IsSubscribable() bool {
	return v.SubscriptionType != nil && *v.SubscriptionType != "" && v.BillingScheduleID != nil && *v.BillingScheduleID != 0
}
