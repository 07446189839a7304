// Package health serves the operational HTTP surface: liveness,
// readiness, a deep health report, and Prometheus metrics.
//
// The deep report pings both store backends and classifies the process
// as healthy, degraded (one backend down), or unhealthy (both down).
// Queue depth gauges are read from the job store at scrape time by a
// custom prometheus.Collector, so /metrics never goes stale.
package health
