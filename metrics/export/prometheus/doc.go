// Package prometheus exposes goSession metrics through client_golang.
//
// [NewCollector] wraps an Engine as a prometheus.Collector. Counter names are
// gosession_*_total; the refresh latency histogram is
// gosession_refresh_latency_seconds and is only published when latency
// histograms are enabled.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the
//     collector themselves or mount [Handler].
//   - Mutate engine state.
package prometheus
