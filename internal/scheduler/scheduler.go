// Package scheduler runs the cron pass that turns due orders and
// subscriptions into queue jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/lock"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobName = "cron"
	lockKey = "scheduler:cron"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// dueStates are the subscription states activated once starts has passed.
var dueStates = []subscriptiondomain.State{
	subscriptiondomain.StatePending,
	subscriptiondomain.StateTrial,
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        *config.SchedulerConfigHolder
	Orders        orderdomain.Repository
	Subscriptions subscriptiondomain.Repository
	Lifecycle     subscriptiondomain.Service
	Queue         queuedomain.Service
	Locker        *lock.Locker `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	cfg           *config.SchedulerConfigHolder
	orders        orderdomain.Repository
	subscriptions subscriptiondomain.Repository
	lifecycle     subscriptiondomain.Service
	queue         queuedomain.Service
	locker        *lock.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Config == nil ||
		p.Orders == nil || p.Subscriptions == nil || p.Lifecycle == nil || p.Queue == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		genID:         p.GenID,
		clock:         p.Clock,
		cfg:           p.Config,
		orders:        p.Orders,
		subscriptions: p.Subscriptions,
		lifecycle:     p.Lifecycle,
		queue:         p.Queue,
		locker:        p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.startPass(ctx, name, batchSize)
	log := s.logger(ctx)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.recordFailure()
		}
		s.finishPass(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout, the next pass picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("scheduler.pass.timeout",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs a single cron pass unless another process holds the cron lock.
func (s *Scheduler) RunOnce(parent context.Context) error {
	cfg := s.cfg.Get()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, lockKey, cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%s: acquire lock: %w", jobName, err)
		}
		if !ok {
			obsmetrics.Scheduler().IncBatchDeferred(jobName, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
			s.log.Debug("scheduler.lock.held", zap.String("job", jobName))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(parent), lockKey, token); err != nil {
				s.log.Warn("scheduler.lock.release_failed", zap.Error(err))
			}
		}()
	}

	return s.runJob(parent, jobName, cfg.BatchSize, cfg.JobTimeout, s.Run)
}

// RunForever runs a pass on every tick of the configured cron spec until ctx ends.
// The spec and the enabled flag are re-read before each wait.
func (s *Scheduler) RunForever(ctx context.Context) {
	schedMetrics := obsmetrics.Scheduler()

	for {
		cfg := s.cfg.Get()
		schedule, err := cron.ParseStandard(cfg.Spec)
		if err != nil {
			s.log.Error("scheduler.spec.invalid", zap.String("spec", cfg.Spec), zap.Error(err))
			schedule = cron.Every(time.Minute)
		}

		nextRun := schedule.Next(s.clock.Now())
		timer := time.NewTimer(max(nextRun.Sub(s.clock.Now()), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if !s.cfg.Get().Enabled {
			continue
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.pass.failed", zap.Error(err))
		}
	}
}

// Run selects overdue recurring orders and due subscriptions and enqueues
// their jobs in one call. Nothing is enqueued when neither is found.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.cfg.Get()
	ctx, run, owner := s.startPass(ctx, jobName, cfg.BatchSize)
	if owner {
		defer s.finishPass(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	orderIDs, err := s.orders.FindOverdueRecurring(ctx, s.db, now)
	if err != nil {
		s.logPassError(ctx, run, "scheduler.orders.query_failed", err)
		return err
	}
	subscriptionIDs, err := s.subscriptions.FindIDsByState(ctx, s.db, dueStates, now)
	if err != nil {
		s.logPassError(ctx, run, "scheduler.subscriptions.query_failed", err)
		return err
	}
	if len(orderIDs) == 0 && len(subscriptionIDs) == 0 {
		return nil
	}

	orderIDs = s.limit(orderIDs, cfg.BatchSize)
	subscriptionIDs = s.limit(subscriptionIDs, cfg.BatchSize)
	run.recordSelected(len(orderIDs), len(subscriptionIDs))

	var jobErr error
	jobs := make([]queuedomain.Job, 0, 2*len(orderIDs)+len(subscriptionIDs))
	for _, orderID := range orderIDs {
		renew, err := s.applyScheduledChanges(ctx, orderID)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logPassError(ctx, run, "scheduler.order.process_failed", err,
				zap.String("order_id", orderID.String()),
			)
			continue
		}
		jobs = append(jobs, queuedomain.NewOrderCloseJob(orderID))
		if renew {
			jobs = append(jobs, queuedomain.NewOrderRenewJob(orderID))
		}
	}
	for _, subscriptionID := range subscriptionIDs {
		// Trials whose starts has passed become pending before activation.
		if _, err := s.lifecycle.Transition(ctx, nil, subscriptionID, subscriptiondomain.StatePending); err != nil {
			// Canceled or activated since the query ran.
			if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
				s.logger(ctx).Warn("scheduler.subscription.skipped",
					zap.String("subscription_id", subscriptionID.String()),
					zap.Error(err),
				)
				continue
			}
			jobErr = errors.Join(jobErr, err)
			s.logPassError(ctx, run, "scheduler.subscription.process_failed", err,
				zap.String("subscription_id", subscriptionID.String()),
			)
			continue
		}
		jobs = append(jobs, queuedomain.NewSubscriptionActivateJob(subscriptionID))
	}

	if len(jobs) > 0 {
		if err := s.queue.Enqueue(ctx, jobs...); err != nil {
			s.logPassError(ctx, run, "scheduler.enqueue_failed", err, zap.Int("job_count", len(jobs)))
			return errors.Join(jobErr, err)
		}
	}

	schedMetrics.AddBatchProcessed(jobName, obsmetrics.ResourceOrders, len(orderIDs))
	schedMetrics.AddBatchProcessed(jobName, obsmetrics.ResourceSubscriptions, len(subscriptionIDs))
	schedMetrics.AddBatchProcessed(jobName, obsmetrics.ResourceJobs, len(jobs))
	run.recordEnqueued(len(jobs))
	return jobErr
}

// applyScheduledChanges ends the subscriptions of an overdue order that asked to
// cancel at period end. It reports whether any subscription is left to renew.
func (s *Scheduler) applyScheduledChanges(ctx context.Context, orderID snowflake.ID) (bool, error) {
	var renew bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := s.orders.FindSubscriptionIDs(ctx, tx, orderID)
		if err != nil {
			return err
		}
		active, err := s.lifecycle.ApplyScheduledChanges(ctx, tx, ids)
		if err != nil {
			return err
		}
		renew = len(active) > 0
		return nil
	})
	return renew, err
}

// limit trims ids to size. The remainder is left for the next pass.
func (s *Scheduler) limit(ids []snowflake.ID, size int) []snowflake.ID {
	if size <= 0 || len(ids) <= size {
		return ids
	}
	obsmetrics.Scheduler().IncBatchDeferred(jobName, obsmetrics.SchedulerBatchDeferredReasonBatchFull)
	return ids[:size]
}
