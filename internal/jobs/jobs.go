// Package jobs implements the handlers behind every recurring queue job type.
package jobs

import (
	"errors"

	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("jobs",
	fx.Provide(
		NewActivationProcessor,
		NewOrderCloseProcessor,
		NewOrderRenewProcessor,
		NewHandlerTable,
	),
)

type HandlerTableParams struct {
	fx.In

	Activation *ActivationProcessor
	Close      *OrderCloseProcessor
	Renew      *OrderRenewProcessor
}

// NewHandlerTable is the closed set of handlers the worker dispatches to.
func NewHandlerTable(p HandlerTableParams) queuedomain.HandlerTable {
	return queuedomain.HandlerTable{
		queuedomain.JobTypeSubscriptionActivate: p.Activation,
		queuedomain.JobTypeOrderClose:           p.Close,
		queuedomain.JobTypeOrderRenew:           p.Renew,
	}
}

var failureReasons = []struct {
	err    error
	reason string
}{
	{subscriptiondomain.ErrSubscriptionNotFound, "Subscription not found."},
	{subscriptiondomain.ErrInvalidState, "Subscription not pending."},
	{orderdomain.ErrOrderNotFound, "Order not found."},
	{orderdomain.ErrNotRecurring, "Order is not a recurring order."},
	{queuedomain.ErrInvalidPayload, "Invalid job payload."},
}

// resultFor converts a processor error into the job outcome.
func resultFor(err error) queuedomain.Result {
	if err == nil {
		return queuedomain.Success()
	}
	for _, f := range failureReasons {
		if errors.Is(err, f.err) {
			return queuedomain.Failure(f.reason)
		}
	}
	return queuedomain.Failure(err.Error())
}
