// Package metrics exposes relay counters to Prometheus.
//
// A Collector implements relay.Observer and keeps its metrics on a private
// registry, so several relays in one test binary never collide.
package metrics
