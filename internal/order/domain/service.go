package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// TransitionHooks run inside the transaction of an initial order's state change.
// An error aborts the transition.
type TransitionHooks interface {
	OnPlace(ctx context.Context, tx *gorm.DB, order *Order) error
	OnCancel(ctx context.Context, tx *gorm.DB, order *Order) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	Place(ctx context.Context, id string) (*Order, error)
	Cancel(ctx context.Context, id string) (*Order, error)
}

type CreateRequest struct {
	CustomerID      string              `json:"customer_id"`
	StoreID         string              `json:"store_id"`
	PaymentMethodID *string             `json:"payment_method_id"`
	Items           []CreateItemRequest `json:"items"`
}

type CreateItemRequest struct {
	VariationID string `json:"variation_id"`
	Quantity    string `json:"quantity"`
}

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInvalidState         = errors.New("invalid_state")
	ErrNotRecurring         = errors.New("order_not_recurring")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidStore         = errors.New("invalid_store")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidItems         = errors.New("invalid_items")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrVariationNotFound    = errors.New("variation_not_found")
	ErrCurrencyMismatch     = errors.New("currency_mismatch")
)
