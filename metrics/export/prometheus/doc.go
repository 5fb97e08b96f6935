// Package prometheus exposes engine counters through client_golang.
//
// [Exporter] is a prometheus.Collector that reads [go2fa.Engine.MetricsSnapshot]
// on every scrape, so it never double-counts and never needs its own
// bookkeeping. Register it on a registry of your choice or mount
// [Exporter.Handler], which serves a private registry.
package prometheus
