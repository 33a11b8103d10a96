package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/recurring/internal/observability/context"
	obslogger "github.com/smallbiznis/recurring/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"go.uber.org/zap"
)

// passRun accumulates what one cron pass did, for its finish log line.
type passRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time

	orders        int
	subscriptions int
	enqueued      int
	failures      int
}

type passRunKey struct{}

func (r *passRun) recordSelected(orders, subscriptions int) {
	if r == nil {
		return
	}
	r.orders += orders
	r.subscriptions += subscriptions
}

func (r *passRun) recordEnqueued(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.enqueued += count
}

func (r *passRun) recordFailure() {
	if r != nil {
		r.failures++
	}
}

// startPass attaches a run to ctx unless one is already there. owner reports
// whether the caller started it and so must log its finish.
func (s *Scheduler) startPass(ctx context.Context, job string, batchSize int) (_ context.Context, run *passRun, owner bool) {
	if existing, ok := ctx.Value(passRunKey{}).(*passRun); ok {
		return ctx, existing, false
	}
	run = &passRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, passRunKey{}, run)
	ctx = obscontext.WithJob(ctx, run.runID, "scheduler."+job)
	s.logger(ctx).Info("scheduler.pass.start", zap.Int("batch_size", batchSize))
	return ctx, run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) finishPass(ctx context.Context, run *passRun) {
	fields := []zap.Field{
		zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
		zap.Int("orders", run.orders),
		zap.Int("subscriptions", run.subscriptions),
		zap.Int("enqueued", run.enqueued),
		zap.Int("failures", run.failures),
	}
	if run.failures > 0 {
		s.logger(ctx).Warn("scheduler.pass.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.pass.finish", fields...)
}

// logPassError logs err under msg with its metrics reason and counts it against run.
func (s *Scheduler) logPassError(ctx context.Context, run *passRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.recordFailure()
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	}, fields...)...)
}
