// Package metrics collects failover statistics.
//
// Events are sent to a buffered channel and processed by a dedicated
// goroutine, so recording never blocks the request path:
//   - attempts per endpoint, with latency percentiles (P50, P95, P99)
//   - status code distribution and failed attempts
//   - blacklist and recovery transitions
//   - exhausted logical requests (no endpoint left to try)
//
// The Collector implements failover.Listener and the transport's attempt
// observer, so it can be handed directly to both.
//
//	collector := metrics.NewCollector(1000, logger, prometheus.NewRegistry())
//	collector.Start(ctx)
//
//	decider := failover.New(targets, cooldown, failover.WithListener(collector))
//
//	snapshot := collector.Snapshot()
//
// When a prometheus.Registerer is supplied, the same events also update
// Prometheus counters, gauges and histograms.
package metrics
