// Package telemetry defines meadowd's Prometheus metrics and a Collector
// that periodically snapshots the update store into gauges. Metrics are
// exposed over HTTP by internal/api's /metrics route via Handler().
package telemetry
