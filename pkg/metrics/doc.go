// Package metrics registers the Prometheus collectors for the backup
// control plane (servers, backup throughput, scheduler/reaper/prober tick
// latency, fan-out bus backpressure, executor outcomes) and exposes them via
// Handler for a /metrics endpoint, plus process health/readiness handlers
// for the HTTP edge to probe.
package metrics
