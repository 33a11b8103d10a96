package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	State  JobState
	Limit  int
	Cursor *Cursor
}

// Cursor positions a listing after the job with ID.
type Cursor struct {
	ID snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	// ClaimNext locks the oldest queued job of queue available at now.
	ClaimNext(ctx context.Context, db *gorm.DB, queue string, now time.Time) (*Job, error)
	MarkProcessing(ctx context.Context, db *gorm.DB, job *Job) error
	Complete(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	CountByState(ctx context.Context, db *gorm.DB, queue string) (map[JobState]int64, error)
	List(ctx context.Context, db *gorm.DB, queue string, filter ListFilter) ([]*Job, error)
}
