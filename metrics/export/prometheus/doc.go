// Package prometheus exposes phoneauth engine metrics to Prometheus.
//
// [Collector] implements prometheus.Collector and turns each scrape into one
// engine snapshot read. Counters are named phoneauth_*_total; the token
// validation histogram is phoneauth_validate_latency_seconds. Register the
// collector with your own registry, or mount [Handler] for a ready-made
// /metrics endpoint.
package prometheus
