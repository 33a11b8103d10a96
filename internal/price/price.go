// Package price holds the money value used for subscription and order amounts.
package price

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidNumber    = errors.New("invalid_number")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
)

// Price is a decimal amount in an ISO 4217 currency.
type Price struct {
	Number       decimal.Decimal `json:"number"`
	CurrencyCode string          `json:"currency_code"`
}

func New(number string, currencyCode string) (Price, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(number))
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidNumber, number)
	}
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if len(code) != 3 {
		return Price{}, ErrInvalidCurrency
	}
	return Price{Number: value, CurrencyCode: code}, nil
}

// MustNew is New for literals known to be valid.
func MustNew(number string, currencyCode string) Price {
	p, err := New(number, currencyCode)
	if err != nil {
		panic(err)
	}
	return p
}

func Zero(currencyCode string) Price {
	return Price{Number: decimal.Zero, CurrencyCode: strings.ToUpper(strings.TrimSpace(currencyCode))}
}

func (p Price) Multiply(factor decimal.Decimal) Price {
	return Price{Number: p.Number.Mul(factor), CurrencyCode: p.CurrencyCode}
}

func (p Price) Add(other Price) (Price, error) {
	if p.CurrencyCode != other.CurrencyCode {
		return Price{}, ErrCurrencyMismatch
	}
	return Price{Number: p.Number.Add(other.Number), CurrencyCode: p.CurrencyCode}, nil
}

func (p Price) Equal(other Price) bool {
	return p.CurrencyCode == other.CurrencyCode && p.Number.Equal(other.Number)
}

func (p Price) IsZero() bool {
	return p.Number.IsZero()
}

func (p Price) String() string {
	return p.Number.String() + " " + p.CurrencyCode
}
