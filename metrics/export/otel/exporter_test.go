package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/blogauth"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot blogauth.MetricsSnapshot
}

func (f *fakeSource) MetricsSnapshot() blogauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := blogauth.MetricsSnapshot{
		Counters:   make(map[blogauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[blogauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func newMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func findInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{snapshot: blogauth.MetricsSnapshot{
		Counters: map[blogauth.MetricID]uint64{
			blogauth.MetricLoginSuccess:         3,
			blogauth.MetricLoginAccountLocked:   2,
			blogauth.MetricConsentRecorded:      5,
			blogauth.MetricAccountLockTriggered: 1,
		},
		Histograms: map[blogauth.MetricID][]uint64{
			blogauth.MetricLoginLatency: {1, 1, 1, 1, 1, 1, 1, 1},
		},
	}}

	exp, err := NewExporter(provider.Meter("blogauth-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	v, ok := findInt64(rm, "blogauth_login_success_total")
	require.True(t, ok)
	require.EqualValues(t, 3, v)

	v, ok = findInt64(rm, "blogauth_login_account_locked_total")
	require.True(t, ok)
	require.EqualValues(t, 2, v)

	v, ok = findInt64(rm, "blogauth_login_latency_seconds_bucket_le_inf")
	require.True(t, ok)
	require.EqualValues(t, 8, v)

	v, ok = findInt64(rm, "blogauth_login_latency_seconds_count")
	require.True(t, ok)
	require.EqualValues(t, 8, v)
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newMeter(t)

	_, err := NewExporter(provider.Meter("blogauth-test"), nil)
	require.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporter(nil, &fakeSource{})
	require.ErrorIs(t, err, ErrNilMeter)

	var nilExp *Exporter
	require.NoError(t, nilExp.Close())
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{snapshot: blogauth.MetricsSnapshot{
		Counters:   map[blogauth.MetricID]uint64{blogauth.MetricLoginSuccess: 1},
		Histograms: map[blogauth.MetricID][]uint64{},
	}}

	exp, err := NewExporter(provider.Meter("blogauth-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[blogauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterSilentWhenMetricsDisabled(t *testing.T) {
	reader, provider := newMeter(t)

	exp, err := NewExporter(provider.Meter("blogauth-test"), &fakeSource{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	_, ok := findInt64(rm, "blogauth_login_success_total")
	require.False(t, ok)
}
