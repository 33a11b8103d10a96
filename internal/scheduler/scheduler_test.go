package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	billingschedulerepo "github.com/smallbiznis/recurring/internal/billingschedule/repository"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/lock"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	orderrepo "github.com/smallbiznis/recurring/internal/order/repository"
	"github.com/smallbiznis/recurring/internal/price"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	"github.com/smallbiznis/recurring/internal/recurringorder"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/recurring/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/recurring/internal/subscription/service"
	"github.com/smallbiznis/recurring/internal/testutil"
	"github.com/smallbiznis/recurring/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2017, time.February, 24, 17, 30, 0, 0, time.UTC)

// recordingQueue keeps every Enqueue call.
type recordingQueue struct {
	calls [][]queuedomain.Job
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, jobs ...queuedomain.Job) error {
	q.calls = append(q.calls, jobs)
	return q.err
}

func (q *recordingQueue) Claim(context.Context) (*queuedomain.Job, error) { return nil, nil }

func (q *recordingQueue) Complete(context.Context, *queuedomain.Job, queuedomain.Result) error {
	return nil
}

func (q *recordingQueue) CountByState(context.Context) (map[queuedomain.JobState]int64, error) {
	return nil, nil
}

func (q *recordingQueue) List(context.Context, queuedomain.JobState, pagination.Pagination) ([]*queuedomain.Job, *pagination.PageInfo, error) {
	return nil, nil, nil
}

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	queue    *recordingQueue
	subs     subscriptiondomain.Repository
	manager  recurringorder.Manager
	registry *prometheus.Registry
	params   Params
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := useTestRegistry(t)
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	orders := orderrepo.Provide()
	subs := subscriptionrepo.Provide()
	schedules := billingschedulerepo.Provide()
	queue := &recordingQueue{}

	require.NoError(t, schedules.Insert(context.Background(), db, &billingscheduledomain.BillingSchedule{
		ID:            1,
		Code:          "hourly",
		Name:          "Hourly",
		BillingType:   billingscheduledomain.BillingTypePostpaid,
		IntervalUnit:  billingscheduledomain.IntervalUnitHour,
		IntervalCount: 1,
		Prorater:      billingscheduledomain.ProraterProportional,
		Status:        billingscheduledomain.BillingScheduleStatusEnabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))

	return &fixture{
		db:       db,
		clock:    clk,
		queue:    queue,
		subs:     subs,
		registry: registry,
		manager: recurringorder.New(recurringorder.Params{
			Log:          log,
			GenID:        node,
			Clock:        clk,
			Rounder:      price.NewRounder(),
			OrderRepo:    orders,
			ScheduleRepo: schedules,
			Subscription: subs,
		}),
		params: Params{
			DB:            db,
			Log:           log,
			GenID:         node,
			Clock:         clk,
			Config:        config.NewStaticSchedulerConfigHolder(config.DefaultSchedulerConfig()),
			Orders:        orders,
			Subscriptions: subs,
			Lifecycle: subscriptionservice.NewService(subscriptionservice.ServiceParam{
				DB:    db,
				Log:   log,
				GenID: node,
				Clock: clk,
				Repo:  subs,
			}),
			Queue: queue,
		},
	}
}

func (f *fixture) scheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(f.params)
	require.NoError(t, err)
	return s
}

func (f *fixture) addSubscription(t *testing.T, id int64, state subscriptiondomain.State, starts time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                snowflake.ID(id),
		Type:              "product_variation",
		State:             state,
		BillingScheduleID: 1,
		CustomerID:        7,
		StoreID:           8,
		PurchasedEntityID: 9,
		Title:             "Hourly widget",
		UnitPrice:         decimal.RequireFromString("3.00"),
		CurrencyCode:      "USD",
		Quantity:          decimal.NewFromInt(1),
		Starts:            starts,
		InitialOrderID:    99,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if state == subscriptiondomain.StateTrial {
		trialStarts := starts.Add(-24 * time.Hour)
		sub.TrialStarts = &trialStarts
		sub.TrialEnds = &starts
	}
	require.NoError(t, f.subs.Insert(context.Background(), f.db, sub))
	return sub
}

// addOverdueOrder bills an active subscription for [17:00, 18:00) and moves the clock past it.
func (f *fixture) addOverdueOrder(t *testing.T, sub *subscriptiondomain.Subscription) *orderdomain.Order {
	t.Helper()
	order, err := f.manager.EnsureOrder(context.Background(), f.db, sub)
	require.NoError(t, err)
	f.clock.Set(time.Date(2017, time.February, 24, 18, 5, 0, 0, time.UTC))
	return order
}

type enqueued struct {
	jobType queuedomain.JobType
	id      snowflake.ID
}

func decodeCall(t *testing.T, jobs []queuedomain.Job) []enqueued {
	t.Helper()
	out := make([]enqueued, 0, len(jobs))
	for _, job := range jobs {
		if job.Type == queuedomain.JobTypeSubscriptionActivate {
			var payload queuedomain.SubscriptionPayload
			require.NoError(t, job.DecodePayload(&payload))
			out = append(out, enqueued{job.Type, payload.SubscriptionID})
			continue
		}
		var payload queuedomain.OrderPayload
		require.NoError(t, job.DecodePayload(&payload))
		out = append(out, enqueued{job.Type, payload.OrderID})
	}
	return out
}

func TestRunWithNothingDueLeavesQueueAlone(t *testing.T) {
	f := newFixture(t)
	f.addSubscription(t, 10, subscriptiondomain.StatePending, now.Add(time.Hour))

	require.NoError(t, f.scheduler(t).Run(context.Background()))
	assert.Empty(t, f.queue.calls)
}

func TestRunEnqueuesEverythingInOneCall(t *testing.T) {
	f := newFixture(t)
	active := f.addSubscription(t, 10, subscriptiondomain.StateActive, time.Date(2017, time.February, 24, 17, 0, 0, 0, time.UTC))
	order := f.addOverdueOrder(t, active)
	pending := f.addSubscription(t, 11, subscriptiondomain.StatePending, time.Date(2017, time.February, 24, 18, 0, 0, 0, time.UTC))

	require.NoError(t, f.scheduler(t).Run(context.Background()))

	require.Len(t, f.queue.calls, 1)
	assert.Equal(t, []enqueued{
		{queuedomain.JobTypeOrderClose, order.ID},
		{queuedomain.JobTypeOrderRenew, order.ID},
		{queuedomain.JobTypeSubscriptionActivate, pending.ID},
	}, decodeCall(t, f.queue.calls[0]))

	labels := map[string]string{"service": "recurring", "env": "test", "job": jobName, "resource": obsmetrics.ResourceJobs}
	assert.Equal(t, float64(3), getCounterValue(t, f.registry, "recurring_scheduler_batch_processed_total", labels))
}

func TestRunAppliesScheduledCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.addSubscription(t, 10, subscriptiondomain.StateActive, time.Date(2017, time.February, 24, 17, 0, 0, 0, time.UTC))
	order := f.addOverdueOrder(t, sub)

	sub.CancelAtPeriodEnd = true
	require.NoError(t, f.subs.UpdateLifecycle(ctx, f.db, sub))

	require.NoError(t, f.scheduler(t).Run(ctx))

	require.Len(t, f.queue.calls, 1)
	assert.Equal(t, []enqueued{{queuedomain.JobTypeOrderClose, order.ID}}, decodeCall(t, f.queue.calls[0]))

	stored, err := f.subs.FindByID(ctx, f.db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateCanceled, stored.State)
	assert.False(t, stored.CancelAtPeriodEnd)
}

func TestRunMovesElapsedTrialToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trial := f.addSubscription(t, 10, subscriptiondomain.StateTrial, now.Add(-time.Minute))
	future := f.addSubscription(t, 11, subscriptiondomain.StateTrial, now.Add(time.Hour))

	require.NoError(t, f.scheduler(t).Run(ctx))

	require.Len(t, f.queue.calls, 1)
	assert.Equal(t, []enqueued{{queuedomain.JobTypeSubscriptionActivate, trial.ID}}, decodeCall(t, f.queue.calls[0]))

	stored, err := f.subs.FindByID(ctx, f.db, trial.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatePending, stored.State)

	stored, err = f.subs.FindByID(ctx, f.db, future.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateTrial, stored.State)
}

// staleSubscriptions reports extra ids as due, as if their state changed after the query.
type staleSubscriptions struct {
	subscriptiondomain.Repository
	extra []snowflake.ID
}

func (r *staleSubscriptions) FindIDsByState(ctx context.Context, db *gorm.DB, states []subscriptiondomain.State, startsBefore time.Time) ([]snowflake.ID, error) {
	ids, err := r.Repository.FindIDsByState(ctx, db, states, startsBefore)
	if err != nil {
		return nil, err
	}
	return append(ids, r.extra...), nil
}

func TestRunSkipsSubscriptionCanceledAfterQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.addSubscription(t, 10, subscriptiondomain.StatePending, now.Add(-time.Minute))
	canceled := f.addSubscription(t, 11, subscriptiondomain.StateCanceled, now.Add(-time.Minute))
	f.params.Subscriptions = &staleSubscriptions{Repository: f.subs, extra: []snowflake.ID{canceled.ID}}

	require.NoError(t, f.scheduler(t).RunOnce(ctx))

	require.Len(t, f.queue.calls, 1)
	assert.Equal(t, []enqueued{{queuedomain.JobTypeSubscriptionActivate, pending.ID}}, decodeCall(t, f.queue.calls[0]))

	stored, err := f.subs.FindByID(ctx, f.db, canceled.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateCanceled, stored.State)
}

func TestRunTrimsToBatchSize(t *testing.T) {
	f := newFixture(t)
	cfg := config.DefaultSchedulerConfig()
	cfg.BatchSize = 1
	f.params.Config = config.NewStaticSchedulerConfigHolder(cfg)
	f.addSubscription(t, 10, subscriptiondomain.StatePending, now)
	f.addSubscription(t, 11, subscriptiondomain.StatePending, now)

	require.NoError(t, f.scheduler(t).Run(context.Background()))

	require.Len(t, f.queue.calls, 1)
	assert.Len(t, f.queue.calls[0], 1)
	labels := map[string]string{"service": "recurring", "env": "test", "job": jobName, "reason": obsmetrics.SchedulerBatchDeferredReasonBatchFull}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "recurring_scheduler_batch_deferred_total", labels))
}

func TestRunOnceReturnsEnqueueError(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("queue down")
	f.addSubscription(t, 10, subscriptiondomain.StatePending, now)

	err := f.scheduler(t).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron: ")
	assert.Contains(t, err.Error(), "queue down")
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.params.Locker = lock.NewLocker(client)
	f.addSubscription(t, 10, subscriptiondomain.StatePending, now)

	other := lock.NewLocker(client)
	token, ok, err := other.TryLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	s := f.scheduler(t)
	require.NoError(t, s.RunOnce(ctx))
	assert.Empty(t, f.queue.calls)
	labels := map[string]string{"service": "recurring", "env": "test", "job": jobName, "reason": obsmetrics.SchedulerBatchDeferredReasonLockHeld}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "recurring_scheduler_batch_deferred_total", labels))

	require.NoError(t, other.Release(ctx, lockKey, token))
	require.NoError(t, s.RunOnce(ctx))
	assert.Len(t, f.queue.calls, 1)

	// The pass released its own lock.
	_, ok, err = other.TryLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useTestRegistry(t)

	s := &Scheduler{log: zap.NewNop(), genID: testutil.Node(t), clock: clock.NewFakeClock(time.Time{})}
	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "recurring", "env": "test", "job": "timeout_job"}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "recurring_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "recurring",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "recurring_scheduler_job_errors_total", errorLabels))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not return after cancel")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// useTestRegistry points the scheduler metrics at a fresh registry for the test.
func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "recurring",
		Environment: "test",
	})
	return registry
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
