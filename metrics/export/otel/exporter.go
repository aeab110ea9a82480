package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads. *blogauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() blogauth.MetricsSnapshot
}

// counterFeed reports one engine counter.
type counterFeed struct {
	id   blogauth.MetricID
	inst metric.Int64ObservableCounter
}

// latencyFeed reports one latency histogram as a gauge per cumulative bound
// plus a sample total, since asynchronous OTel instruments cannot carry
// pre-bucketed histograms.
type latencyFeed struct {
	id     blogauth.MetricID
	bounds []metric.Int64ObservableGauge
	total  metric.Int64ObservableGauge
}

func newLatencyFeed(meter metric.Meter, def internaldefs.HistogramDef) (latencyFeed, []metric.Observable, error) {
	feed := latencyFeed{id: def.ID, bounds: make([]metric.Int64ObservableGauge, len(internaldefs.HistogramBoundSuffix))}
	insts := make([]metric.Observable, 0, len(feed.bounds)+1)

	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Cumulative count at this bound."))
		if err != nil {
			return feed, nil, fmt.Errorf("otel gauge %s: %w", name, err)
		}
		feed.bounds[i] = g
		insts = append(insts, g)
	}

	name := def.Name + "_count"
	g, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Total samples."))
	if err != nil {
		return feed, nil, fmt.Errorf("otel gauge %s: %w", name, err)
	}
	feed.total = g
	return feed, append(insts, g), nil
}

func (f latencyFeed) report(o metric.Observer, raw []uint64) {
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	for i, g := range f.bounds {
		o.ObserveInt64(g, int64(cumulative[i]))
	}
	o.ObserveInt64(f.total, int64(cumulative[len(cumulative)-1]))
}

// Exporter publishes engine metrics through asynchronous OpenTelemetry
// instruments. Each collection takes one snapshot from the source.
type Exporter struct {
	source   Source
	reg      metric.Registration
	counters []counterFeed
	latency  []latencyFeed
}

// NewExporter creates every instrument on meter and registers a single
// collection callback.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	switch {
	case meter == nil:
		return nil, ErrNilMeter
	case source == nil:
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var insts []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterFeed{id: def.ID, inst: c})
		insts = append(insts, c)
	}
	for _, def := range internaldefs.HistogramDefs {
		feed, more, err := newLatencyFeed(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, feed)
		insts = append(insts, more...)
	}

	reg, err := meter.RegisterCallback(e.observe, insts...)
	if err != nil {
		return nil, fmt.Errorf("otel register callback: %w", err)
	}
	e.reg = reg
	return e, nil
}

// observe reports nothing while the engine runs with metrics disabled.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	if len(snap.Counters) == 0 {
		return nil
	}
	for _, f := range e.counters {
		o.ObserveInt64(f.inst, int64(snap.Counters[f.id]))
	}
	for _, f := range e.latency {
		if raw, ok := snap.Histograms[f.id]; ok {
			f.report(o, raw)
		}
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
