package client

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/apikit/observability"
	"github.com/kbukum/apikit/resilience"
)

// clientMetrics holds the OpenTelemetry instruments for the client.
// With no meter provider configured these are no-ops.
type clientMetrics struct {
	requests     metric.Int64Counter
	queueDepth   metric.Int64Gauge
	breakerState metric.Int64Gauge
}

func newClientMetrics() *clientMetrics {
	meter := observability.Meter("github.com/kbukum/apikit/client")

	m := &clientMetrics{}
	m.requests, _ = meter.Int64Counter("apikit.client.requests",
		metric.WithDescription("Client requests by method and outcome"))
	m.queueDepth, _ = meter.Int64Gauge("apikit.client.queue_depth",
		metric.WithDescription("Offline queue depth"))
	m.breakerState, _ = meter.Int64Gauge("apikit.client.breaker_state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)"))
	return m
}

// recordRequest counts one finished request.
func (m *clientMetrics) recordRequest(method, outcome string) {
	if m.requests == nil {
		return
	}
	m.requests.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		))
}

// recordQueueDepth records the queue size after a queue event.
func (m *clientMetrics) recordQueueDepth(size int) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.Record(context.Background(), int64(size))
}

// recordBreakerState records a breaker transition.
func (m *clientMetrics) recordBreakerState(s resilience.State) {
	if m.breakerState == nil {
		return
	}
	m.breakerState.Record(context.Background(), int64(s))
}
