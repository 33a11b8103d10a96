package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/recurring/pkg/db/pagination"
)

// Handler processes one job type. Failures are reported through Result and
// are never retried by the worker.
type Handler interface {
	Handle(ctx context.Context, job *Job) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) Result

func (f HandlerFunc) Handle(ctx context.Context, job *Job) Result {
	return f(ctx, job)
}

// HandlerTable dispatches jobs by type.
type HandlerTable map[JobType]Handler

type Service interface {
	// Enqueue stores every job in a single transaction.
	Enqueue(ctx context.Context, jobs ...Job) error
	// Claim marks the next available job as processing. It returns nil when the queue is empty.
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job, result Result) error
	CountByState(ctx context.Context) (map[JobState]int64, error)
	List(ctx context.Context, state JobState, page pagination.Pagination) ([]*Job, *pagination.PageInfo, error)
}

var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrInvalidState   = errors.New("invalid_state")
	ErrInvalidJobType = errors.New("invalid_job_type")
	ErrInvalidCursor  = errors.New("invalid_cursor")
	ErrJobNotFound    = errors.New("job_not_found")
	ErrLeaseLost      = errors.New("lease_lost")
)
