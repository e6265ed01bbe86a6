// Package metrics provides Prometheus instrumentation for the photo library.
//
// All metrics are prefixed with "photo_library_" and registered with the
// default registry through promauto. Mount promhttp.Handler() to expose them.
//
// # Metric Categories
//
//   - HTTP: request counts, latency and in-flight requests
//   - Database: query counts and latency by operation, transaction latency
//   - Scanner: job outcomes, coalesced requests, running and queued jobs,
//     configured workers, periodic ticks, per-file and per-album results,
//     tombstones
//   - Metadata, thumbnails and transcoding: extraction, generation and
//     rendition counters and latency histograms
//   - Faces: detections, clustering assignments, group mutations
//   - Shares and notifications: validation results, subscribers
//   - Catalog: live media, albums, tombstones and face groups, refreshed by
//     the [Collector]
//   - Filesystem: operation latency and stale-handle retries
//
// # Collector
//
// [Collector] periodically reads catalog totals from a [StatsProvider]:
//
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Scan failure rate:
//
//	sum(rate(photo_library_scan_jobs_total{outcome="failure"}[1h])) /
//	sum(rate(photo_library_scan_jobs_total[1h]))
//
// P95 thumbnail generation time:
//
//	histogram_quantile(0.95, sum(rate(photo_library_thumbnail_generation_duration_seconds_bucket[5m])) by (le, type))
package metrics
