package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/clock"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription) error {
	if tx == nil {
		tx = s.db
	}
	if subscription.ID == 0 {
		subscription.ID = s.genID.Generate()
	}
	now := s.clock.Now()
	if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = now
	}
	subscription.UpdatedAt = now

	if err := subscription.Validate(); err != nil {
		return err
	}
	return s.repo.Insert(ctx, tx, subscription)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *Service) Transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, target domain.State) (*domain.Subscription, error) {
	if tx != nil {
		return s.transition(ctx, tx, id, target)
	}

	var updated *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = s.transition(ctx, tx, id, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, target domain.State) (*domain.Subscription, error) {
	subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	if subscription.State == target {
		return subscription, nil
	}
	if !isTransitionAllowed(subscription.State, target) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	switch target {
	case domain.StatePending:
		if !trialElapsed(subscription, now) {
			return nil, domain.ErrInvalidState
		}
	case domain.StateCanceled:
		subscription.CanceledAt = &now
		subscription.CancelAtPeriodEnd = false
	case domain.StateExpired:
		subscription.Ends = &now
	}

	from := subscription.State
	subscription.State = target
	subscription.UpdatedAt = now

	if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
		return nil, err
	}

	s.metrics.RecordSubscriptionTransition(ctx, string(from), string(target))
	s.log.Info("subscription.transition",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return subscription, nil
}

func (s *Service) ScheduleCancellation(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	var updated *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrSubscriptionNotFound
		}
		if subscription.State != domain.StateActive {
			return domain.ErrInvalidState
		}
		if subscription.CancelAtPeriodEnd {
			updated = subscription
			return nil
		}

		subscription.CancelAtPeriodEnd = true
		subscription.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) ApplyScheduledChanges(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]snowflake.ID, error) {
	if tx == nil {
		tx = s.db
	}
	subscriptions, err := s.repo.FindByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	active := make([]snowflake.ID, 0, len(subscriptions))
	for i := range subscriptions {
		subscription := &subscriptions[i]
		if subscription.State != domain.StateActive {
			continue
		}
		if !subscription.CancelAtPeriodEnd {
			active = append(active, subscription.ID)
			continue
		}

		now := s.clock.Now()
		subscription.State = domain.StateCanceled
		subscription.CancelAtPeriodEnd = false
		subscription.CanceledAt = &now
		subscription.Ends = &now
		subscription.UpdatedAt = now
		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return nil, err
		}
		s.metrics.RecordSubscriptionTransition(ctx, string(domain.StateActive), string(domain.StateCanceled))
		s.log.Info("subscription.canceled_at_period_end",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Time("canceled_at", now),
		)
	}
	return active, nil
}

func isTransitionAllowed(current, target domain.State) bool {
	switch current {
	case domain.StatePending:
		return target == domain.StateActive || target == domain.StateCanceled
	case domain.StateTrial:
		return target == domain.StatePending || target == domain.StateCanceled
	case domain.StateActive:
		return target == domain.StateCanceled || target == domain.StateExpired
	default:
		return false
	}
}

// trialElapsed reports whether a trial subscription is billable at now.
func trialElapsed(subscription *domain.Subscription, now time.Time) bool {
	return subscription.State == domain.StateTrial && !subscription.Starts.After(now)
}
