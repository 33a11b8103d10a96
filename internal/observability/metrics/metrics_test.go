package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("order_type", "recurring"),
		attribute.String("customer_id", "456"),
		attribute.String("state", "completed"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("order_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("state"), attrs[1].Key)
}

func TestMetricsRecordOrderCreated(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "recurring"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOrderCreated(ctx, "recurring")
	m.RecordOrderCreated(ctx, "recurring")
	m.RecordSubscriptionTransition(ctx, "pending", "active")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				totals[metric.Name] += point.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["recurring_orders_created_total"])
	assert.Equal(t, int64(1), totals["recurring_subscription_transitions_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOrderCreated(context.Background(), "recurring")
	m.RecordOrderClosed(context.Background(), "recurring")
}
