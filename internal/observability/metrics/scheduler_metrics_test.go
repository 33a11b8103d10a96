package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("enqueue: %w", context.DeadlineExceeded),
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "recurring",
		Environment: "test",
	})

	metrics.AddBatchProcessed("recurring_cron", ResourceOrders, 3)
	metrics.AddBatchProcessed("recurring_cron", ResourceOrders, 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("recurring_cron", ResourceOrders))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestRunLoopLagClampsNegative(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})

	metrics.ObserveRunLoopLag(-time.Second)

	if got := testutil.CollectAndCount(registry, "recurring_scheduler_runloop_lag_seconds"); got != 1 {
		t.Fatalf("expected one lag series, got %d", got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var metrics *SchedulerMetrics
	metrics.IncJobRun("x")
	metrics.IncJobError("x", errors.New("boom"))
	metrics.ObserveRunLoopLag(time.Second)
}
