// Package worker drains the recurring queue with a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	obscontext "github.com/smallbiznis/recurring/internal/observability/context"
	"github.com/smallbiznis/recurring/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"github.com/smallbiznis/recurring/internal/queue/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const msgUnknownJobType = "Unknown job type."

type Config struct {
	Enabled      bool          `env:"QUEUE_WORKER_ENABLED" envDefault:"true"`
	Concurrency  int           `env:"QUEUE_CONCURRENCY" envDefault:"4"`
	PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	JobTimeout   time.Duration `env:"QUEUE_JOB_TIMEOUT" envDefault:"30s"`
}

// LoadConfig reads the worker settings from the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if cfg.Concurrency <= 0 {
		return Config{}, errors.New("QUEUE_CONCURRENCY must be positive")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, errors.New("QUEUE_POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

type Params struct {
	fx.In

	Config   Config
	Log      *zap.Logger
	Service  domain.Service
	Handlers domain.HandlerTable
}

type Worker struct {
	cfg      Config
	log      *zap.Logger
	svc      domain.Service
	handlers domain.HandlerTable

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(p Params) *Worker {
	return &Worker{
		cfg:      p.Config,
		log:      p.Log.Named("queue.worker"),
		svc:      p.Service,
		handlers: p.Handlers,
	}
}

// Start launches the polling goroutines. It returns immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("worker already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		group.Go(func() error {
			w.poll(groupCtx)
			return nil
		})
	}
	w.cancel = cancel
	w.group = group

	w.log.Info("queue.worker.started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Duration("poll_interval", w.cfg.PollInterval),
	)
	return nil
}

// Stop cancels polling and waits for in-flight jobs to be completed.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, group := w.cancel, w.group
	w.cancel, w.group = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := group.Wait()
	w.log.Info("queue.worker.stopped")
	return err
}

func (w *Worker) poll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain processes jobs until the queue has nothing available or ctx ends.
// It returns the number of jobs processed.
func (w *Worker) Drain(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		ok, err := w.ProcessNext(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.log.Error("queue.claim.failed", zap.Error(err))
			}
			return processed
		}
		if !ok {
			return processed
		}
		processed++
	}
	return processed
}

// ProcessNext claims and handles a single job. It reports false when no
// job was available.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.svc.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	result := w.handle(ctx, job)
	// The outcome is recorded even when shutdown canceled ctx mid-job.
	if err := w.svc.Complete(context.WithoutCancel(ctx), job, result); err != nil {
		w.log.Error("queue.job.complete_failed",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Error(err),
		)
	}
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *domain.Job) (result domain.Result) {
	ctx = obscontext.WithJob(ctx, job.ID.String(), string(job.Type))
	ctx, span := otel.Tracer("recurring/queue").Start(ctx, "job "+string(job.Type))
	span.SetAttributes(
		attribute.String("job.type", string(job.Type)),
		attribute.Int("job.attempts", job.Attempts),
	)
	log := logger.WithContext(ctx, w.log)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("queue.job.panic", zap.Any("panic", r), zap.Stack("stack"))
			result = domain.Failure(fmt.Sprintf("Job panicked: %v", r))
		}

		obsmetrics.Queue().ObserveDuration(string(job.Type), time.Since(start))
		if result.Succeeded() {
			log.Debug("queue.job.succeeded", zap.Duration("duration", time.Since(start)))
		} else {
			span.SetStatus(codes.Error, result.Message)
			log.Warn("queue.job.failed",
				zap.String("reason", result.Message),
				zap.Int("attempts", job.Attempts),
			)
		}
		span.End()
	}()

	handler, ok := w.handlers[job.Type]
	if !ok || handler == nil {
		return domain.Failure(msgUnknownJobType)
	}

	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	return handler.Handle(ctx, job)
}

// Register hooks the worker into the fx lifecycle when it is enabled.
func Register(lc fx.Lifecycle, cfg Config, w *Worker) {
	if !cfg.Enabled {
		w.log.Info("queue.worker.disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// The start context expires once fx finishes starting.
			return w.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			return w.Stop()
		},
	})
}
