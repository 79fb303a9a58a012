// Package metrics holds the Prometheus metrics shared across the worker:
// HTTP metrics for its health and metrics endpoints and database metrics for
// the repositories. Pipeline metrics live next to the code that records them.
//
// Everything registers with the default registry and is served on /metrics.
package metrics
