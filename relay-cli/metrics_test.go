package relaycli

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tj/assert"
)

func TestPromMetrics(t *testing.T) {
	var (
		ctx      = context.Background()
		registry = prometheus.NewRegistry()
		metrics  = NewPromMetrics(NewService("test"), registry)
	)

	metrics.Event(ctx, MessageRoutedMetric, map[DimensionName]string{TargetKindDimension: "broadcast"})
	metrics.Event(ctx, MessageRoutedMetric, map[DimensionName]string{TargetKindDimension: "broadcast"})
	metrics.Event(ctx, MessageRoutedMetric, map[DimensionName]string{TargetKindDimension: "direct"})
	metrics.Timing(ctx, ResponseTimeMetric, time.Now(), map[DimensionName]string{OperationNameDimension: "$connect"})
	metrics.Gauge(ctx, BroadcastFanoutMetric, 3)

	t.Run("counter per label set", func(t *testing.T) {
		c := metrics.counter(MessageRoutedMetric)
		assert.EqualValues(t, 2, testutil.ToFloat64(c.WithLabelValues("", "broadcast")))
		assert.EqualValues(t, 1, testutil.ToFloat64(c.WithLabelValues("", "direct")))
	})

	t.Run("gauge", func(t *testing.T) {
		assert.EqualValues(t, 3, testutil.ToFloat64(metrics.gauge(BroadcastFanoutMetric).WithLabelValues("", "")))
	})

	t.Run("registered", func(t *testing.T) {
		families, err := registry.Gather()
		assert.NoError(t, err)
		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.Contains(t, names, "relay_message_routed_total")
		assert.Contains(t, names, "relay_response_time_milliseconds")
		assert.Contains(t, names, "relay_broadcast_fanout")
	})
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "TABLE_NAME", EnvVar("table-name"))
	assert.Equal(t, "PORT", EnvVar("port"))
}
