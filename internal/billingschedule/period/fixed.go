// Package period generates calendar-aligned billing periods for fixed
// interval billing schedules.
package period

import (
	"time"

	"github.com/smallbiznis/recurring/internal/billingschedule/domain"
)

// Generator produces consecutive billing periods.
type Generator interface {
	// First aligns start down to the interval unit boundary and covers count units from there.
	First(start time.Time) (domain.BillingPeriod, error)
	// Next begins where previous ends. start is accepted but not used to re-align.
	Next(start time.Time, previous domain.BillingPeriod) (domain.BillingPeriod, error)
	// Trial covers the trial interval from start without alignment.
	Trial(start time.Time) (domain.BillingPeriod, error)
}

type unitRule struct {
	align func(time.Time) time.Time
	add   func(time.Time, int) time.Time
}

var unitRules = map[domain.IntervalUnit]unitRule{
	domain.IntervalUnitHour: {
		align: func(t time.Time) time.Time { return t.Truncate(time.Hour) },
		add:   fixedAdd(time.Hour),
	},
	domain.IntervalUnitDay: {
		align: startOfDay,
		add:   fixedAdd(24 * time.Hour),
	},
	domain.IntervalUnitWeek: {
		align: func(t time.Time) time.Time {
			// Weeks start on Monday.
			offset := (int(t.Weekday()) + 6) % 7
			return startOfDay(t).Add(-time.Duration(offset) * 24 * time.Hour)
		},
		add: fixedAdd(7 * 24 * time.Hour),
	},
	domain.IntervalUnitMonth: {
		align: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		},
		add: func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) },
	},
	domain.IntervalUnitYear: {
		align: func(t time.Time) time.Time {
			return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		},
		add: func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) },
	},
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func fixedAdd(unit time.Duration) func(time.Time, int) time.Time {
	return func(t time.Time, n int) time.Time {
		return t.Add(time.Duration(n) * unit)
	}
}

type fixed struct {
	interval  domain.Interval
	trial     domain.Interval
	rule      unitRule
	trialRule unitRule
}

// NewFixed returns a generator for interval. trial is used by Trial only.
func NewFixed(interval, trial domain.Interval) (Generator, error) {
	if err := interval.Validate(); err != nil {
		return nil, err
	}
	if err := trial.Validate(); err != nil {
		return nil, err
	}
	return &fixed{
		interval:  interval,
		trial:     trial,
		rule:      unitRules[interval.Unit],
		trialRule: unitRules[trial.Unit],
	}, nil
}

// ForSchedule builds the generator configured by a billing schedule.
func ForSchedule(schedule *domain.BillingSchedule) (Generator, error) {
	if schedule == nil {
		return nil, domain.ErrInvalidBillingSchedule
	}
	return NewFixed(schedule.Interval(), schedule.TrialInterval())
}

func (g *fixed) First(start time.Time) (domain.BillingPeriod, error) {
	aligned := g.rule.align(start.UTC())
	return domain.NewBillingPeriod(aligned, g.rule.add(aligned, g.interval.Count))
}

func (g *fixed) Next(_ time.Time, previous domain.BillingPeriod) (domain.BillingPeriod, error) {
	start := previous.End.UTC()
	return domain.NewBillingPeriod(start, g.rule.add(start, g.interval.Count))
}

func (g *fixed) Trial(start time.Time) (domain.BillingPeriod, error) {
	start = start.UTC()
	return domain.NewBillingPeriod(start, g.trialRule.add(start, g.trial.Count))
}
