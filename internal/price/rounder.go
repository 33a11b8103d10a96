package price

import (
	"golang.org/x/text/currency"
)

// Rounder rounds a price to the minor-unit precision of its currency.
type Rounder interface {
	Round(p Price) (Price, error)
}

type currencyRounder struct{}

func NewRounder() Rounder {
	return currencyRounder{}
}

// Round rounds half away from zero, which is half-up for the non-negative
// amounts billed here.
func (currencyRounder) Round(p Price) (Price, error) {
	unit, err := currency.ParseISO(p.CurrencyCode)
	if err != nil {
		return Price{}, ErrInvalidCurrency
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Price{
		Number:       p.Number.Round(int32(scale)),
		CurrencyCode: unit.String(),
	}, nil
}
