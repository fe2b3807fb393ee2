// Package prometheus renders membership engine metrics in the Prometheus text
// exposition format.
//
// Counters are named membership_*_total. The single histogram is
// membership_validate_latency_seconds and is rendered only when latency
// recording is enabled on the engine.
//
// # What this package must NOT do
//
//   - Register with a global Prometheus registry. Callers mount Handler.
//   - Mutate engine state.
package prometheus
