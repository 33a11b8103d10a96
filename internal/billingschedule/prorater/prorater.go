// Package prorater scales order item prices to the part of a billing period
// they actually cover.
package prorater

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/price"
)

// Prorater prices an item that covers partial out of full.
type Prorater interface {
	ProrateOrderItem(unitPrice price.Price, partial, full domain.BillingPeriod) (price.Price, error)
}

type proportional struct {
	rounder price.Rounder
}

// NewProportional charges unitPrice scaled by partial/full, rounded to the
// currency's minor unit.
func NewProportional(rounder price.Rounder) Prorater {
	return &proportional{rounder: rounder}
}

func (p *proportional) ProrateOrderItem(unitPrice price.Price, partial, full domain.BillingPeriod) (price.Price, error) {
	fullDuration := full.Duration()
	partialDuration := partial.Duration()
	if fullDuration <= 0 || partialDuration < 0 {
		return price.Price{}, domain.ErrInvalidPeriod
	}
	if partialDuration == 0 {
		return price.Zero(unitPrice.CurrencyCode), nil
	}
	if partialDuration == fullDuration {
		return unitPrice, nil
	}

	ratio := decimal.NewFromInt(int64(partialDuration)).Div(decimal.NewFromInt(int64(fullDuration)))
	return p.rounder.Round(unitPrice.Multiply(ratio))
}

type fullPrice struct{}

// NewFullPrice always charges the whole unit price.
func NewFullPrice() Prorater {
	return fullPrice{}
}

func (fullPrice) ProrateOrderItem(unitPrice price.Price, partial, full domain.BillingPeriod) (price.Price, error) {
	if full.Duration() <= 0 || partial.Duration() <= 0 {
		return price.Price{}, domain.ErrInvalidPeriod
	}
	return unitPrice, nil
}

var strategies = map[domain.ProraterKind]func(price.Rounder) Prorater{
	domain.ProraterProportional: NewProportional,
	domain.ProraterFullPrice:    func(price.Rounder) Prorater { return NewFullPrice() },
}

// ForKind returns the strategy a billing schedule selects.
func ForKind(kind domain.ProraterKind, rounder price.Rounder) (Prorater, error) {
	build, ok := strategies[kind]
	if !ok {
		return nil, domain.ErrInvalidProrater
	}
	return build(rounder), nil
}
