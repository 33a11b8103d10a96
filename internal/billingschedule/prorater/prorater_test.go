package prorater

import (
	"testing"
	"time"

	"github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/price"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2017, time.March, 1, 0, 0, 0, 0, time.UTC)

func span(from, to time.Duration) domain.BillingPeriod {
	return domain.BillingPeriod{Start: base.Add(from), End: base.Add(to)}
}

func TestProportionalIdentity(t *testing.T) {
	p := NewProportional(price.NewRounder())

	// An unrounded amount proves no rounding happens for equal durations.
	unit := price.MustNew("9.999", "USD")
	got, err := p.ProrateOrderItem(unit, span(0, 24*time.Hour), span(48*time.Hour, 72*time.Hour))
	require.NoError(t, err)
	assert.True(t, unit.Equal(got), "got %s", got)
}

func TestProportionalHalf(t *testing.T) {
	p := NewProportional(price.NewRounder())

	got, err := p.ProrateOrderItem(price.MustNew("2.00", "USD"), span(0, 12*time.Hour), span(0, 24*time.Hour))
	require.NoError(t, err)
	assert.True(t, price.MustNew("1.00", "USD").Equal(got), "got %s", got)
}

func TestProportionalRoundsToMinorUnit(t *testing.T) {
	p := NewProportional(price.NewRounder())

	// 10.00 * 1/3 = 3.333...
	got, err := p.ProrateOrderItem(price.MustNew("10.00", "USD"), span(0, 8*time.Hour), span(0, 24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "3.33", got.Number.StringFixed(2))

	// 1000 JPY * 2/3 = 666.66... rounds to 667 yen.
	got, err = p.ProrateOrderItem(price.MustNew("1000", "JPY"), span(0, 16*time.Hour), span(0, 24*time.Hour))
	require.NoError(t, err)
	assert.True(t, price.MustNew("667", "JPY").Equal(got), "got %s", got)
}

func TestProportionalRejectsEmptyPeriods(t *testing.T) {
	p := NewProportional(price.NewRounder())
	unit := price.MustNew("2.00", "USD")

	_, err := p.ProrateOrderItem(unit, span(0, time.Hour), span(0, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)

	_, err = p.ProrateOrderItem(unit, span(time.Hour, 0), span(0, time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestProportionalZeroCoverageIsFree(t *testing.T) {
	p := NewProportional(price.NewRounder())

	got, err := p.ProrateOrderItem(price.MustNew("10.00", "USD"), span(time.Hour, time.Hour), span(0, time.Hour))
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "got %s", got)
	assert.Equal(t, "USD", got.CurrencyCode)

	_, err = p.ProrateOrderItem(price.MustNew("10.00", "USD"), span(0, 0), span(0, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestFullPriceIgnoresCoverage(t *testing.T) {
	p, err := ForKind(domain.ProraterFullPrice, price.NewRounder())
	require.NoError(t, err)

	unit := price.MustNew("5.00", "EUR")
	got, err := p.ProrateOrderItem(unit, span(0, time.Hour), span(0, 30*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, unit.Equal(got))
}

func TestForKind(t *testing.T) {
	p, err := ForKind(domain.ProraterProportional, price.NewRounder())
	require.NoError(t, err)
	assert.IsType(t, &proportional{}, p)

	_, err = ForKind("daily", price.NewRounder())
	assert.ErrorIs(t, err, domain.ErrInvalidProrater)
}
