package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/recurring/internal/clock"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"github.com/smallbiznis/recurring/internal/queue/domain"
	"github.com/smallbiznis/recurring/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("queue.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Enqueue(ctx context.Context, jobs ...domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range jobs {
			job := &jobs[i]
			if !isKnownType(job.Type) {
				return domain.ErrInvalidJobType
			}
			if job.ID == 0 {
				job.ID = s.genID.Generate()
			}
			if job.Queue == "" {
				job.Queue = domain.QueueName
			}
			job.State = domain.JobStateQueued
			if job.AvailableAt.IsZero() {
				job.AvailableAt = now
			}
			job.CreatedAt = now
			job.UpdatedAt = now
			if err := s.repo.Insert(ctx, tx, job); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics := obsmetrics.Queue()
	for _, job := range jobs {
		metrics.IncEnqueued(string(job.Type))
	}
	s.log.Debug("queue.enqueued", zap.Int("count", len(jobs)))
	return nil
}

func (s *Service) Claim(ctx context.Context) (*domain.Job, error) {
	var claimed *domain.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		job, err := s.repo.ClaimNext(ctx, tx, domain.QueueName, now)
		if err != nil || job == nil {
			return err
		}

		lease := ulid.Make().String()
		job.State = domain.JobStateProcessing
		job.Attempts++
		job.LeaseToken = &lease
		job.ClaimedAt = &now
		job.UpdatedAt = now
		if err := s.repo.MarkProcessing(ctx, tx, job); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		obsmetrics.Queue().IncClaimError()
		return nil, err
	}
	return claimed, nil
}

func (s *Service) Complete(ctx context.Context, job *domain.Job, result domain.Result) error {
	if job == nil {
		return domain.ErrJobNotFound
	}
	if result.State != domain.JobStateSuccess && result.State != domain.JobStateFailure {
		return domain.ErrInvalidState
	}

	now := s.clock.Now()
	job.State = result.State
	job.Message = nil
	if msg := strings.TrimSpace(result.Message); msg != "" {
		job.Message = &msg
	}
	job.ProcessedAt = &now
	job.UpdatedAt = now

	if err := s.repo.Complete(ctx, s.db, job); err != nil {
		return err
	}
	job.LeaseToken = nil

	obsmetrics.Queue().IncCompleted(string(job.Type), string(job.State))
	return nil
}

func (s *Service) CountByState(ctx context.Context) (map[domain.JobState]int64, error) {
	return s.repo.CountByState(ctx, s.db, domain.QueueName)
}

func (s *Service) List(ctx context.Context, state domain.JobState, page pagination.Pagination) ([]*domain.Job, *pagination.PageInfo, error) {
	if state != "" && !isKnownState(state) {
		return nil, nil, domain.ErrInvalidState
	}

	filter := domain.ListFilter{
		State: state,
		Limit: page.Limit() + 1,
	}
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, nil, domain.ErrInvalidCursor
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, domain.ErrInvalidCursor
		}
		filter.Cursor = &domain.Cursor{ID: id}
	}

	items, err := s.repo.List(ctx, s.db, domain.QueueName, filter)
	if err != nil {
		return nil, nil, err
	}
	return pagination.BuildCursorPageInfo(items, page.Limit(), func(job *domain.Job) pagination.Cursor {
		return pagination.Cursor{ID: job.ID.String()}
	})
}

func isKnownType(jobType domain.JobType) bool {
	switch jobType {
	case domain.JobTypeOrderClose, domain.JobTypeOrderRenew, domain.JobTypeSubscriptionActivate:
		return true
	default:
		return false
	}
}

func isKnownState(state domain.JobState) bool {
	switch state {
	case domain.JobStateQueued, domain.JobStateProcessing, domain.JobStateSuccess, domain.JobStateFailure:
		return true
	default:
		return false
	}
}
