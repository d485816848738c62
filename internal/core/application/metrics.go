package application

import (
	"context"
	"time"

	"github.com/lockstep-labs/chand/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/lockstep-labs/chand/internal/core/application"

// metrics are recorded on the global meter provider, which is a no-op
// unless the otel SDK has been initialized.
type metrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)

	operations, err := meter.Int64Counter(
		"chand.operations",
		metric.WithDescription("Number of submitted operations by outcome"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"chand.operation.duration",
		metric.WithDescription("Time spent executing an operation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{operations, duration}, nil
}

func (m *metrics) record(ctx context.Context, op Operation, err errors.Error, elapsed time.Duration) {
	code := "OK"
	if err != nil {
		code = err.CodeName()
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("code", code),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
