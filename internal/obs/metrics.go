package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ComponentMetrics is the minimal metrics triple every component records:
// request count, error count, and operation latency. It generalizes the
// teacher's per-package metrics.go (pkg/retrievers/metrics.go has a near
// identical requests/duration/errors triple per operation family) into one
// reusable type parameterized by subsystem name, rather than hand-writing
// the same three instruments in every internal package.
type ComponentMetrics struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewComponentMetrics registers the requests/errors/duration instruments
// for subsystem (e.g. "embedder", "retrieval", "agent") against meter.
func NewComponentMetrics(meter metric.Meter, subsystem string) (*ComponentMetrics, error) {
	m := &ComponentMetrics{}
	var err error

	m.requests, err = meter.Int64Counter(
		subsystem+"_requests_total",
		metric.WithDescription("Total number of "+subsystem+" operations"),
	)
	if err != nil {
		return nil, err
	}

	m.errors, err = meter.Int64Counter(
		subsystem+"_errors_total",
		metric.WithDescription("Total number of "+subsystem+" operation errors"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		subsystem+"_duration_seconds",
		metric.WithDescription("Duration of "+subsystem+" operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOp records one operation's outcome and duration. op (e.g. "search",
// "embed") is attached as an attribute so a single instrument set covers
// every operation a component exposes.
func (m *ComponentMetrics) RecordOp(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
