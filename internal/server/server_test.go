package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/observability"
	orderdomain "github.com/smallbiznis/recurring/internal/order/domain"
	productdomain "github.com/smallbiznis/recurring/internal/product/domain"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	subscriptiondomain "github.com/smallbiznis/recurring/internal/subscription/domain"
	"github.com/smallbiznis/recurring/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeOrders struct {
	created orderdomain.CreateRequest
	err     error
}

func (f *fakeOrders) Create(_ context.Context, req orderdomain.CreateRequest) (*orderdomain.Order, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &orderdomain.Order{ID: 7, Type: orderdomain.OrderTypeInitial, State: orderdomain.StateDraft}, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*orderdomain.Order, error) {
	if id != "7" {
		return nil, orderdomain.ErrOrderNotFound
	}
	return &orderdomain.Order{ID: 7, State: orderdomain.StateDraft}, nil
}

func (f *fakeOrders) Place(_ context.Context, id string) (*orderdomain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &orderdomain.Order{ID: 7, State: orderdomain.StatePlaced}, nil
}

func (f *fakeOrders) Cancel(_ context.Context, id string) (*orderdomain.Order, error) {
	return &orderdomain.Order{ID: 7, State: orderdomain.StateCanceled}, nil
}

type fakeProducts struct{}

func (fakeProducts) Create(_ context.Context, req productdomain.CreateRequest) (*productdomain.Variation, error) {
	if req.SKU == "" {
		return nil, productdomain.ErrInvalidSKU
	}
	return &productdomain.Variation{ID: 3, SKU: req.SKU}, nil
}

func (fakeProducts) Get(_ context.Context, id string) (*productdomain.Variation, error) {
	return nil, productdomain.ErrNotFound
}

type fakeSchedules struct{}

func (fakeSchedules) Create(_ context.Context, req billingscheduledomain.CreateRequest) (*billingscheduledomain.BillingSchedule, error) {
	if req.Name == "" {
		return nil, billingscheduledomain.ErrInvalidName
	}
	return &billingscheduledomain.BillingSchedule{ID: 1, Name: req.Name}, nil
}

func (fakeSchedules) GetByID(_ context.Context, id string) (*billingscheduledomain.BillingSchedule, error) {
	return nil, billingscheduledomain.ErrBillingScheduleNotFound
}

func (fakeSchedules) List(context.Context) ([]billingscheduledomain.BillingSchedule, error) {
	return []billingscheduledomain.BillingSchedule{{ID: 1, Name: "Monthly"}}, nil
}

type fakeSubscriptions struct {
	scheduled snowflake.ID
}

func (f *fakeSubscriptions) Create(context.Context, *gorm.DB, *subscriptiondomain.Subscription) error {
	return nil
}

func (f *fakeSubscriptions) GetByID(_ context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if id != 42 {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return &subscriptiondomain.Subscription{ID: 42, State: subscriptiondomain.StateActive}, nil
}

func (f *fakeSubscriptions) Transition(context.Context, *gorm.DB, snowflake.ID, subscriptiondomain.State) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (f *fakeSubscriptions) ScheduleCancellation(_ context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if id != 42 {
		return nil, subscriptiondomain.ErrInvalidState
	}
	f.scheduled = id
	return &subscriptiondomain.Subscription{ID: id, State: subscriptiondomain.StateActive, CancelAtPeriodEnd: true}, nil
}

func (f *fakeSubscriptions) ApplyScheduledChanges(context.Context, *gorm.DB, []snowflake.ID) ([]snowflake.ID, error) {
	return nil, nil
}

type fakeQueue struct {
	listedState queuedomain.JobState
	listedPage  pagination.Pagination
}

func (f *fakeQueue) Enqueue(context.Context, ...queuedomain.Job) error { return nil }

func (f *fakeQueue) Claim(context.Context) (*queuedomain.Job, error) { return nil, nil }

func (f *fakeQueue) Complete(context.Context, *queuedomain.Job, queuedomain.Result) error { return nil }

func (f *fakeQueue) CountByState(context.Context) (map[queuedomain.JobState]int64, error) {
	return map[queuedomain.JobState]int64{queuedomain.JobStateQueued: 2, queuedomain.JobStateFailure: 1}, nil
}

func (f *fakeQueue) List(_ context.Context, state queuedomain.JobState, page pagination.Pagination) ([]*queuedomain.Job, *pagination.PageInfo, error) {
	f.listedState = state
	f.listedPage = page
	if state == "bogus" {
		return nil, nil, queuedomain.ErrInvalidState
	}
	return []*queuedomain.Job{{ID: 5, Type: queuedomain.JobTypeOrderClose, State: state}}, &pagination.PageInfo{}, nil
}

type testServer struct {
	engine        *gin.Engine
	orders        *fakeOrders
	subscriptions *fakeSubscriptions
	queue         *fakeQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		orders:        &fakeOrders{},
		subscriptions: &fakeSubscriptions{},
		queue:         &fakeQueue{},
	}
	engine := NewEngine(zap.NewNop(), observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:             engine,
		OrderSvc:        ts.orders,
		ProductSvc:      fakeProducts{},
		ScheduleSvc:     fakeSchedules{},
		SubscriptionSvc: ts.subscriptions,
		QueueSvc:        ts.queue,
	})
	ts.engine = engine
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateOrderBindsRequest(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/orders", `{"customer_id":"1","store_id":"2","payment_method_id":"3","items":[{"variation_id":"4","quantity":"2"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", ts.orders.created.CustomerID)
	require.NotNil(t, ts.orders.created.PaymentMethodID)
	assert.Equal(t, "3", *ts.orders.created.PaymentMethodID)
	require.Len(t, ts.orders.created.Items, 1)
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/orders", `{"customer_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
}

func TestOrderErrorsMapToStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/orders/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.orders.err = orderdomain.ErrInvalidState
	rec = ts.do(http.MethodPost, "/v1/orders/7/place", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Type)

	ts.orders.err = orderdomain.ErrInvalidPaymentMethod
	rec = ts.do(http.MethodPost, "/v1/orders/7/place", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "payment_method", payload.Errors[0].Field)
}

func TestCatalogRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/billing_schedules", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/billing_schedules", `{"name":"Monthly","billing_type":"prepaid","interval_unit":"month","interval_count":1,"prorater":"full"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/billing_schedules", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/billing_schedules/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/products", `{"title":"Coffee"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_sku", decodeError(t, rec).Errors[0].Code)

	rec = ts.do(http.MethodGet, "/v1/products/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/subscriptions/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_subscription_id", decodeError(t, rec).Errors[0].Code)

	rec = ts.do(http.MethodGet, "/v1/subscriptions/42", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/subscriptions/43", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/subscriptions/42/schedule_cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(42), ts.subscriptions.scheduled)

	rec = ts.do(http.MethodPost, "/v1/subscriptions/43/schedule_cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queuedomain.JobStateFailure, ts.queue.listedState)

	rec = ts.do(http.MethodGet, "/v1/jobs?state=queued&page_size=10&page_token=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queuedomain.JobStateQueued, ts.queue.listedState)
	assert.Equal(t, 10, ts.queue.listedPage.PageSize)
	assert.Equal(t, "abc", ts.queue.listedPage.PageToken)

	rec = ts.do(http.MethodGet, "/v1/jobs?state=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/jobs/counts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"queued":2,"failure":1}}`, rec.Body.String())
}

func TestRunCronWithoutScheduler(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/cron/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
