// Package domain contains persistence models for billing schedules and the
// billing period value type.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingType decides whether a recurring order charges for the period it
// covers (postpaid) or for the following period (prepaid).
type BillingType string

const (
	BillingTypePrepaid  BillingType = "prepaid"
	BillingTypePostpaid BillingType = "postpaid"
)

// IntervalUnit is the calendar unit of a fixed billing interval.
type IntervalUnit string

const (
	IntervalUnitHour  IntervalUnit = "hour"
	IntervalUnitDay   IntervalUnit = "day"
	IntervalUnitWeek  IntervalUnit = "week"
	IntervalUnitMonth IntervalUnit = "month"
	IntervalUnitYear  IntervalUnit = "year"
)

// ProraterKind selects how partial billing periods are charged.
type ProraterKind string

const (
	ProraterProportional ProraterKind = "proportional"
	ProraterFullPrice    ProraterKind = "full_price"
)

type BillingScheduleStatus string

const (
	BillingScheduleStatusEnabled  BillingScheduleStatus = "enabled"
	BillingScheduleStatusDisabled BillingScheduleStatus = "disabled"
)

// BillingSchedule configures how subscriptions referencing it are billed.
type BillingSchedule struct {
	ID                 snowflake.ID          `gorm:"primaryKey"`
	Code               string                `gorm:"type:text;not null;uniqueIndex"`
	Name               string                `gorm:"type:text;not null"`
	BillingType        BillingType           `gorm:"type:text;not null"`
	IntervalUnit       IntervalUnit          `gorm:"type:text;not null"`
	IntervalCount      int                   `gorm:"not null"`
	AllowTrials        bool                  `gorm:"not null;default:false"`
	TrialIntervalUnit  *IntervalUnit         `gorm:"type:text"`
	TrialIntervalCount *int                  `gorm:""`
	Prorater           ProraterKind          `gorm:"type:text;not null"`
	Status             BillingScheduleStatus `gorm:"type:text;not null"`
	CreatedAt          time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingSchedule) TableName() string { return "billing_schedules" }

// Interval returns the billing interval of the schedule.
func (s BillingSchedule) Interval() Interval {
	return Interval{Unit: s.IntervalUnit, Count: s.IntervalCount}
}

// TrialInterval returns the trial length, falling back to one billing interval.
func (s BillingSchedule) TrialInterval() Interval {
	if s.TrialIntervalUnit == nil || s.TrialIntervalCount == nil {
		return s.Interval()
	}
	return Interval{Unit: *s.TrialIntervalUnit, Count: *s.TrialIntervalCount}
}

// Interval is a count of calendar units.
type Interval struct {
	Unit  IntervalUnit
	Count int
}

func (i Interval) Validate() error {
	if i.Count < 1 {
		return ErrInvalidInterval
	}
	switch i.Unit {
	case IntervalUnitHour, IntervalUnitDay, IntervalUnitWeek, IntervalUnitMonth, IntervalUnitYear:
		return nil
	default:
		return ErrInvalidInterval
	}
}

// BillingPeriod is the half-open interval [Start, End).
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

func NewBillingPeriod(start, end time.Time) (BillingPeriod, error) {
	if !end.After(start) {
		return BillingPeriod{}, ErrInvalidPeriod
	}
	return BillingPeriod{Start: start.UTC(), End: end.UTC()}, nil
}

func (p BillingPeriod) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Contains reports whether t falls inside [Start, End).
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}
