// Package fragotel records fragcache operations as OpenTelemetry metrics.
package fragotel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/goforj/fragcache"
)

const (
	OperationsMetric = "fragcache.operations"
	DurationMetric   = "fragcache.operation.duration"
)

// Observer implements fragcache.Observer on top of a metric.Meter.
type Observer struct {
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

var _ fragcache.Observer = (*Observer)(nil)

// New registers the fragcache instruments on meter.
func New(meter metric.Meter) (*Observer, error) {
	ops, err := meter.Int64Counter(
		OperationsMetric,
		metric.WithDescription("Fragment cache operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		DurationMetric,
		metric.WithDescription("Fragment cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &Observer{ops: ops, duration: duration}, nil
}

// OnCacheOp records one operation. Keys are left out of the attributes to
// keep cardinality bounded.
func (o *Observer) OnCacheOp(ctx context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver fragcache.Driver) {
	opt := metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("hit", hit),
		attribute.Bool("error", err != nil),
		attribute.String("driver", string(driver)),
	)
	o.ops.Add(ctx, 1, opt)
	o.duration.Record(ctx, float64(dur)/float64(time.Millisecond), opt)
}
