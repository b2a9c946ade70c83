package vecdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    upsertCounter   prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordUpsert(duration time.Duration, err error) {
//	    p.upsertCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordUpsert is called after each single chunk upsert.
	// duration is the total time taken, err is nil if successful.
	RecordUpsert(duration time.Duration, err error)

	// RecordBulkUpsert is called after each multi-chunk write.
	// count is the number of chunks attempted, failed is the number that
	// failed, duration is the total time taken.
	RecordBulkUpsert(count, failed int, duration time.Duration)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each chunk, document or library delete.
	RecordDelete(duration time.Duration, err error)

	// RecordRebuild is called after each index rebuild with the number of
	// vectors loaded into the new index.
	RecordRebuild(vectors int, duration time.Duration, err error)

	// RecordMove is called after each document move with the number of
	// chunks moved.
	RecordMove(chunks int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(time.Duration, error)        {}
func (NoopMetricsCollector) RecordBulkUpsert(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)        {}
func (NoopMetricsCollector) RecordRebuild(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordMove(int, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertCount       atomic.Int64
	UpsertErrors      atomic.Int64
	UpsertTotalNanos  atomic.Int64
	BulkUpsertCount   atomic.Int64
	BulkUpsertItems   atomic.Int64
	BulkUpsertFailed  atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
	RebuildCount      atomic.Int64
	RebuildErrors     atomic.Int64
	RebuildVectors    atomic.Int64
	RebuildTotalNanos atomic.Int64
	MoveCount         atomic.Int64
	MoveErrors        atomic.Int64
	MoveChunks        atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordBulkUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBulkUpsert(count, failed int, duration time.Duration) {
	b.BulkUpsertCount.Add(1)
	b.BulkUpsertItems.Add(int64(count))
	b.BulkUpsertFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(vectors int, duration time.Duration, err error) {
	b.RebuildCount.Add(1)
	b.RebuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RebuildErrors.Add(1)
		return
	}
	b.RebuildVectors.Add(int64(vectors))
}

// RecordMove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMove(chunks int, duration time.Duration, err error) {
	b.MoveCount.Add(1)
	if err != nil {
		b.MoveErrors.Add(1)
		return
	}
	b.MoveChunks.Add(int64(chunks))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertCount:      b.UpsertCount.Load(),
		UpsertErrors:     b.UpsertErrors.Load(),
		UpsertAvgNanos:   avg(b.UpsertTotalNanos.Load(), b.UpsertCount.Load()),
		BulkUpsertCount:  b.BulkUpsertCount.Load(),
		BulkUpsertItems:  b.BulkUpsertItems.Load(),
		BulkUpsertFailed: b.BulkUpsertFailed.Load(),
		SearchCount:      b.SearchCount.Load(),
		SearchErrors:     b.SearchErrors.Load(),
		SearchAvgNanos:   avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:      b.DeleteCount.Load(),
		DeleteErrors:     b.DeleteErrors.Load(),
		RebuildCount:     b.RebuildCount.Load(),
		RebuildErrors:    b.RebuildErrors.Load(),
		RebuildVectors:   b.RebuildVectors.Load(),
		RebuildAvgNanos:  avg(b.RebuildTotalNanos.Load(), b.RebuildCount.Load()),
		MoveCount:        b.MoveCount.Load(),
		MoveErrors:       b.MoveErrors.Load(),
		MoveChunks:       b.MoveChunks.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertCount      int64
	UpsertErrors     int64
	UpsertAvgNanos   int64
	BulkUpsertCount  int64
	BulkUpsertItems  int64
	BulkUpsertFailed int64
	SearchCount      int64
	SearchErrors     int64
	SearchAvgNanos   int64
	DeleteCount      int64
	DeleteErrors     int64
	RebuildCount     int64
	RebuildErrors    int64
	RebuildVectors   int64
	RebuildAvgNanos  int64
	MoveCount        int64
	MoveErrors       int64
	MoveChunks       int64
}
