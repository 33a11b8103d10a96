package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/billingschedule/repository"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return New(Params{
		DB:    testutil.OpenDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func monthly(name string) domain.CreateRequest {
	return domain.CreateRequest{
		Name:          name,
		BillingType:   domain.BillingTypePrepaid,
		IntervalUnit:  domain.IntervalUnitMonth,
		IntervalCount: 1,
		Prorater:      domain.ProraterProportional,
	}
}

func TestCreateDerivesCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, monthly("  Monthly Coffee Club "))
	require.NoError(t, err)
	assert.Equal(t, "monthly-coffee-club", schedule.Code)
	assert.Equal(t, "Monthly Coffee Club", schedule.Name)
	assert.Equal(t, domain.BillingScheduleStatusEnabled, schedule.Status)

	stored, err := svc.GetByID(ctx, schedule.ID.String())
	require.NoError(t, err)
	assert.Equal(t, schedule.Code, stored.Code)

	_, err = svc.Create(ctx, monthly("monthly coffee club"))
	assert.ErrorIs(t, err, domain.ErrBillingScheduleExists)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateValidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := monthly("")
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	req = monthly("Weekly")
	req.BillingType = "whenever"
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidBillingType)

	req = monthly("Weekly")
	req.Prorater = "custom"
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidProrater)

	req = monthly("Weekly")
	req.IntervalUnit = "fortnight"
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)

	// A trial needs both its unit and count.
	unit := domain.IntervalUnitDay
	req = monthly("Weekly")
	req.AllowTrials = true
	req.TrialIntervalUnit = &unit
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestGetByIDErrors(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetByID(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrBillingScheduleNotFound)
}
