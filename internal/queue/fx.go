package queue

import (
	"github.com/smallbiznis/recurring/internal/queue/repository"
	"github.com/smallbiznis/recurring/internal/queue/service"
	"github.com/smallbiznis/recurring/internal/queue/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("queue.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

// WorkerModule runs the polling worker. It needs a domain.HandlerTable
// in the graph.
var WorkerModule = fx.Module("queue.worker",
	fx.Provide(worker.LoadConfig),
	fx.Provide(worker.New),
	fx.Invoke(worker.Register),
)
