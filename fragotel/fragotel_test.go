package fragotel

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/goforj/fragcache"
)

func newTestObserver(t *testing.T) (*Observer, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs, err := New(mp.Meter("test"))
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}
	return obs, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestObserverCountsOperationsByAttributes(t *testing.T) {
	obs, reader := newTestObserver(t)
	ctx := context.Background()

	obs.OnCacheOp(ctx, fragcache.OpRead, "graphql/abc", true, nil, 2*time.Millisecond, fragcache.DriverMemory)
	obs.OnCacheOp(ctx, fragcache.OpRead, "graphql/def", true, nil, time.Millisecond, fragcache.DriverMemory)
	obs.OnCacheOp(ctx, fragcache.OpWrite, "graphql/abc", false, errors.New("boom"), time.Millisecond, fragcache.DriverMemory)

	found := findMetric(collect(t, reader), OperationsMetric)
	if found == nil {
		t.Fatalf("%s not recorded", OperationsMetric)
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", found.Data)
	}
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value(attribute.Key("op"))
		failed, _ := dp.Attributes.Value(attribute.Key("error"))
		driver, _ := dp.Attributes.Value(attribute.Key("driver"))
		if driver.AsString() != "memory" {
			t.Fatalf("unexpected driver attribute %q", driver.AsString())
		}
		key := op.AsString()
		if failed.AsBool() {
			key += ":error"
		}
		counts[key] += dp.Value
	}
	if counts["read"] != 2 || counts["write:error"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestObserverRecordsDuration(t *testing.T) {
	obs, reader := newTestObserver(t)
	obs.OnCacheOp(context.Background(), fragcache.OpInvalidate, "user/5", true, nil, 3*time.Millisecond, fragcache.DriverRedis)

	found := findMetric(collect(t, reader), DurationMetric)
	if found == nil {
		t.Fatalf("%s not recorded", DurationMetric)
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", found.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected histogram points: %+v", hist.DataPoints)
	}
	if hist.DataPoints[0].Sum != 3 {
		t.Fatalf("expected 3ms recorded, got %v", hist.DataPoints[0].Sum)
	}
}

func TestObserverWiredIntoCache(t *testing.T) {
	obs, reader := newTestObserver(t)
	ctx := context.Background()
	c, err := fragcache.New(fragcache.NewMemoryStore(ctx), fragcache.WithObserver(obs))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if _, err := c.DeleteCaches(ctx, "user/5"); err != nil {
		t.Fatalf("delete caches: %v", err)
	}
	if findMetric(collect(t, reader), OperationsMetric) == nil {
		t.Fatalf("expected invalidate to be recorded")
	}
}
