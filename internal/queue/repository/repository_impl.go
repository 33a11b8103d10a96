package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/queue/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const jobColumns = `SELECT id, queue, type, payload, state, attempts, message, lease_token, available_at,
		claimed_at, processed_at, created_at, updated_at
		FROM jobs`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO jobs (id, queue, type, payload, state, attempts, message, lease_token, available_at,
		 claimed_at, processed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Queue,
		job.Type,
		job.Payload,
		job.State,
		job.Attempts,
		job.Message,
		job.LeaseToken,
		job.AvailableAt,
		job.ClaimedAt,
		job.ProcessedAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) ClaimNext(ctx context.Context, db *gorm.DB, queue string, now time.Time) (*domain.Job, error) {
	return r.findOne(ctx, db,
		jobColumns+`
		 WHERE queue = ? AND state = ? AND available_at <= ?
		 ORDER BY available_at ASC, id ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		queue,
		domain.JobStateQueued,
		now,
	)
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Exec(
		`UPDATE jobs
		 SET state = ?, attempts = ?, lease_token = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ?`,
		job.State,
		job.Attempts,
		job.LeaseToken,
		job.ClaimedAt,
		job.UpdatedAt,
		job.ID,
	).Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	if job.LeaseToken == nil {
		return domain.ErrLeaseLost
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE jobs
		 SET state = ?, message = ?, processed_at = ?, lease_token = NULL, updated_at = ?
		 WHERE id = ? AND state = ? AND lease_token = ?`,
		job.State,
		job.Message,
		job.ProcessedAt,
		job.UpdatedAt,
		job.ID,
		domain.JobStateProcessing,
		*job.LeaseToken,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	return r.findOne(ctx, db, jobColumns+` WHERE id = ?`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Job, error) {
	var job domain.Job
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) CountByState(ctx context.Context, db *gorm.DB, queue string) (map[domain.JobState]int64, error) {
	var rows []struct {
		State domain.JobState
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT state, COUNT(1) AS total FROM jobs WHERE queue = ? GROUP BY state`,
		queue,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.JobState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, queue string, filter domain.ListFilter) ([]*domain.Job, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("queue = ?", queue)
	if filter.State != "" {
		stmt = stmt.Where("state = ?", filter.State)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("id > ?", filter.Cursor.ID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var items []*domain.Job
	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
