// Package otel publishes engine metrics through the OpenTelemetry metric API.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per login latency bucket. The caller owns the
// MeterProvider and supplies the Meter.
package otel
