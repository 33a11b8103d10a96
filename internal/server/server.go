package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/observability"
	obslogger "github.com/smallbiznis/recurring/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	obstracing "github.com/smallbiznis/recurring/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	productdomain "github.com/smallbiznis/recurring/internal/product/domain"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	"github.com/smallbiznis/recurring/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http"), obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.String("addr", srv.Addr), zap.Error(err))
				}
			}()
			log.Info("http.server.started", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	orderSvc        orderdomain.Service
	productSvc      productdomain.Service
	scheduleSvc     billingscheduledomain.Service
	subscriptionSvc subscriptiondomain.Service
	queueSvc        queuedomain.Service
	scheduler       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	OrderSvc        orderdomain.Service
	ProductSvc      productdomain.Service
	ScheduleSvc     billingscheduledomain.Service
	SubscriptionSvc subscriptiondomain.Service
	QueueSvc        queuedomain.Service
	Scheduler       *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		orderSvc:        p.OrderSvc,
		productSvc:      p.ProductSvc,
		scheduleSvc:     p.ScheduleSvc,
		subscriptionSvc: p.SubscriptionSvc,
		queueSvc:        p.QueueSvc,
		scheduler:       p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerOpsRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	api.GET("/billing_schedules", s.ListBillingSchedules)
	api.POST("/billing_schedules", s.CreateBillingSchedule)
	api.GET("/billing_schedules/:id", s.GetBillingSchedule)

	api.POST("/products", s.CreateProduct)
	api.GET("/products/:id", s.GetProduct)

	api.POST("/orders", s.CreateOrder)
	api.GET("/orders/:id", s.GetOrder)
	api.POST("/orders/:id/place", s.PlaceOrder)
	api.POST("/orders/:id/cancel", s.CancelOrder)

	api.GET("/subscriptions/:id", s.GetSubscription)
	api.POST("/subscriptions/:id/schedule_cancel", s.ScheduleSubscriptionCancel)
}

func (s *Server) registerOpsRoutes() {
	ops := s.engine.Group("/v1")

	ops.GET("/jobs", s.ListJobs)
	ops.GET("/jobs/counts", s.CountJobs)
	ops.POST("/cron/run", s.RunCron)
}
