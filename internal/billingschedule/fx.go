package billingschedule

import (
	"github.com/smallbiznis/recurring/internal/billingschedule/repository"
	"github.com/smallbiznis/recurring/internal/billingschedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingschedule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
