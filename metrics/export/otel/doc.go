// Package otel bridges goSession metrics into OpenTelemetry.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter, an
// Int64ObservableGauge per refresh latency bucket and a pending-refresh gauge.
// A single callback reads the engine snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
