package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, code, name, billing_type, interval_unit, interval_count, allow_trials,
		trial_interval_unit, trial_interval_count, prorater, status, created_at, updated_at
		FROM billing_schedules`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, schedule *domain.BillingSchedule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_schedules (id, code, name, billing_type, interval_unit, interval_count, allow_trials,
		 trial_interval_unit, trial_interval_count, prorater, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.Code,
		schedule.Name,
		schedule.BillingType,
		schedule.IntervalUnit,
		schedule.IntervalCount,
		schedule.AllowTrials,
		schedule.TrialIntervalUnit,
		schedule.TrialIntervalCount,
		schedule.Prorater,
		schedule.Status,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingSchedule, error) {
	var schedule domain.BillingSchedule
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&schedule).Error
	if err != nil {
		return nil, err
	}
	if schedule.ID == 0 {
		return nil, nil
	}
	return &schedule, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.BillingSchedule, error) {
	var schedule domain.BillingSchedule
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE code = ?`, code).Scan(&schedule).Error
	if err != nil {
		return nil, err
	}
	if schedule.ID == 0 {
		return nil, nil
	}
	return &schedule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.BillingSchedule, error) {
	var items []domain.BillingSchedule
	err := db.WithContext(ctx).Raw(selectColumns + ` ORDER BY created_at ASC, id ASC`).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
