package obs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
)

func TestComponentMetricsRecordOp(t *testing.T) {
	provider := metric.NewMeterProvider()
	meter := provider.Meter("test")

	m, err := NewComponentMetrics(meter, "testsubsystem")
	if err != nil {
		t.Fatalf("NewComponentMetrics() error = %v", err)
	}

	m.RecordOp(context.Background(), "search", time.Now(), nil)
	m.RecordOp(context.Background(), "search", time.Now(), errors.New("boom"))

	// A nil *ComponentMetrics must be a safe no-op, matching components
	// that construct without a meter (metrics disabled).
	var nilMetrics *ComponentMetrics
	nilMetrics.RecordOp(context.Background(), "search", time.Now(), nil)
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	if CorrelationID(ctx) != "" {
		t.Fatal("expected empty correlation id on a bare context")
	}
	ctx = WithCorrelationID(ctx, "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Fatalf("CorrelationID() = %q, want %q", got, "abc-123")
	}
}
