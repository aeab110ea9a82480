// Package metrics provides lock-free counters and latency histograms for
// blogauth observability.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically via [sync/atomic.AddUint64]. Histograms use 8 fixed buckets
// (<=5ms up to +Inf). Both are allocation-free on the write path.
//
// # Architecture boundaries
//
// This package owns metric storage. The root package assigns meaning to each
// index (MetricID); export (Prometheus, OTel) lives in metrics/export/ and
// reads snapshots.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import blogauth or any sibling package.
//   - Expose global metric registries.
package metrics
