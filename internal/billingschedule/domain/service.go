package domain

import (
	"context"
	"errors"
)

type CreateRequest struct {
	Name               string        `json:"name"`
	BillingType        BillingType   `json:"billing_type"`
	IntervalUnit       IntervalUnit  `json:"interval_unit"`
	IntervalCount      int           `json:"interval_count"`
	AllowTrials        bool          `json:"allow_trials"`
	TrialIntervalUnit  *IntervalUnit `json:"trial_interval_unit,omitempty"`
	TrialIntervalCount *int          `json:"trial_interval_count,omitempty"`
	Prorater           ProraterKind  `json:"prorater"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*BillingSchedule, error)
	GetByID(ctx context.Context, id string) (*BillingSchedule, error)
	List(ctx context.Context) ([]BillingSchedule, error)
}

var (
	ErrInvalidPeriod           = errors.New("invalid_period")
	ErrInvalidInterval         = errors.New("invalid_interval")
	ErrInvalidBillingType      = errors.New("invalid_billing_type")
	ErrInvalidProrater         = errors.New("invalid_prorater")
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidID               = errors.New("invalid_id")
	ErrBillingScheduleNotFound = errors.New("billing_schedule_not_found")
	ErrBillingScheduleExists   = errors.New("billing_schedule_exists")
	ErrInvalidBillingSchedule  = errors.New("invalid_billing_schedule")
)
