package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/pkg/db"
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
		log:   p.Log.Named("billingschedule.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.BillingSchedule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	switch req.BillingType {
	case domain.BillingTypePrepaid, domain.BillingTypePostpaid:
	default:
		return nil, domain.ErrInvalidBillingType
	}
	switch req.Prorater {
	case domain.ProraterProportional, domain.ProraterFullPrice:
	default:
		return nil, domain.ErrInvalidProrater
	}

	interval := domain.Interval{Unit: req.IntervalUnit, Count: req.IntervalCount}
	if err := interval.Validate(); err != nil {
		return nil, err
	}
	if (req.TrialIntervalUnit == nil) != (req.TrialIntervalCount == nil) {
		return nil, domain.ErrInvalidInterval
	}
	if req.TrialIntervalUnit != nil {
		trial := domain.Interval{Unit: *req.TrialIntervalUnit, Count: *req.TrialIntervalCount}
		if err := trial.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	schedule := &domain.BillingSchedule{
		ID:                 s.genID.Generate(),
		Code:               slug.Make(name),
		Name:               name,
		BillingType:        req.BillingType,
		IntervalUnit:       interval.Unit,
		IntervalCount:      interval.Count,
		AllowTrials:        req.AllowTrials,
		TrialIntervalUnit:  req.TrialIntervalUnit,
		TrialIntervalCount: req.TrialIntervalCount,
		Prorater:           req.Prorater,
		Status:             domain.BillingScheduleStatusEnabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, schedule); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrBillingScheduleExists
		}
		return nil, err
	}

	s.log.Info("billing schedule created",
		zap.String("billing_schedule_id", schedule.ID.String()),
		zap.String("code", schedule.Code),
		zap.String("interval_unit", string(schedule.IntervalUnit)),
		zap.Int("interval_count", schedule.IntervalCount),
	)
	return schedule, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.BillingSchedule, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	schedule, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, domain.ErrBillingScheduleNotFound
	}
	return schedule, nil
}

func (s *Service) List(ctx context.Context) ([]domain.BillingSchedule, error) {
	return s.repo.List(ctx, s.db)
}
