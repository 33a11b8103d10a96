package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/billingschedule"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/jobs"
	"github.com/smallbiznis/recurring/internal/lock"
	"github.com/smallbiznis/recurring/internal/migration"
	"github.com/smallbiznis/recurring/internal/observability"
	"github.com/smallbiznis/recurring/internal/order"
	"github.com/smallbiznis/recurring/internal/price"
	"github.com/smallbiznis/recurring/internal/product"
	"github.com/smallbiznis/recurring/internal/queue"
	"github.com/smallbiznis/recurring/internal/recurringorder"
	"github.com/smallbiznis/recurring/internal/scheduler"
	"github.com/smallbiznis/recurring/internal/subscription"
	"github.com/smallbiznis/recurring/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		price.Module,
		lock.Module,

		// Domain services required by the cron pass and the job handlers
		billingschedule.Module,
		product.Module,
		subscription.Module,
		order.Module,
		recurringorder.Module,

		queue.Module,
		jobs.Module,
		queue.WorkerModule,
		scheduler.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
