package domain

import (
	"context"
	"errors"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Variation, error)
	Get(ctx context.Context, id string) (*Variation, error)
}

type CreateRequest struct {
	SKU               string  `json:"sku"`
	Title             string  `json:"title"`
	UnitPrice         string  `json:"unit_price"`
	CurrencyCode      string  `json:"currency_code"`
	SubscriptionType  *string `json:"subscription_type"`
	BillingScheduleID *string `json:"billing_schedule_id"`
}

var (
	ErrInvalidSKU             = errors.New("invalid_sku")
	ErrInvalidTitle           = errors.New("invalid_title")
	ErrInvalidPrice           = errors.New("invalid_price")
	ErrInvalidBillingSchedule = errors.New("invalid_billing_schedule")
	ErrInvalidID              = errors.New("invalid_id")
	ErrNotFound               = errors.New("not_found")
	ErrDuplicateSKU           = errors.New("duplicate_sku")
)
