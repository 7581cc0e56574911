package redis

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// opCounter counts calls of one operation and their total latency
type opCounter struct {
	calls   atomic.Uint64
	totalNs atomic.Uint64
}

func (c *opCounter) record(d time.Duration) {
	c.calls.Add(1)
	c.totalNs.Add(uint64(d.Nanoseconds()))
}

func (c *opCounter) average() time.Duration {
	calls := c.calls.Load()
	if calls == 0 {
		return 0
	}
	return time.Duration(c.totalNs.Load() / calls)
}

func (c *opCounter) reset() {
	c.calls.Store(0)
	c.totalNs.Store(0)
}

// Metrics tracks cache performance statistics
type Metrics struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64

	gets    opCounter
	sets    opCounter
	deletes opCounter

	compressionSaves  atomic.Uint64 // bytes saved via compression
	chunkedOperations atomic.Uint64
	invalidations     atomic.Uint64

	// result cache
	rowsStored   atomic.Uint64
	rowsRestored atomic.Uint64
	decodeErrors atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordCacheHit()   { m.hits.Add(1) }
func (m *Metrics) RecordCacheMiss()  { m.misses.Add(1) }
func (m *Metrics) RecordCacheError() { m.errors.Add(1) }

func (m *Metrics) RecordGet(d time.Duration)    { m.gets.record(d) }
func (m *Metrics) RecordSet(d time.Duration)    { m.sets.record(d) }
func (m *Metrics) RecordDelete(d time.Duration) { m.deletes.record(d) }

// RecordCompression records bytes saved via compression
func (m *Metrics) RecordCompression(bytesSaved uint64) {
	m.compressionSaves.Add(bytesSaved)
}

// RecordChunked counts a value written in chunks
func (m *Metrics) RecordChunked() {
	m.chunkedOperations.Add(1)
}

// RecordInvalidation counts one deleted batch of a pattern invalidation
func (m *Metrics) RecordInvalidation() {
	m.invalidations.Add(1)
}

// RecordRows counts rows written to or read from the result cache
func (m *Metrics) RecordRows(stored, restored int) {
	m.rowsStored.Add(uint64(stored))
	m.rowsRestored.Add(uint64(restored))
}

// RecordDecodeError counts a cached result that could not be decoded
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Add(1)
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	hits, misses := m.hits.Load(), m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return MetricsSnapshot{
		CacheHits:             hits,
		CacheMisses:           misses,
		CacheErrors:           m.errors.Load(),
		CacheHitRate:          hitRate,
		GetOperations:         m.gets.calls.Load(),
		SetOperations:         m.sets.calls.Load(),
		DeleteOperations:      m.deletes.calls.Load(),
		AvgGetLatency:         m.gets.average(),
		AvgSetLatency:         m.sets.average(),
		AvgDeleteLatency:      m.deletes.average(),
		CompressionBytesSaved: m.compressionSaves.Load(),
		ChunkedOperations:     m.chunkedOperations.Load(),
		InvalidationCount:     m.invalidations.Load(),
		RowsStored:            m.rowsStored.Load(),
		RowsRestored:          m.rowsRestored.Load(),
		DecodeErrors:          m.decodeErrors.Load(),
	}
}

// Reset zeroes every counter
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.hits, &m.misses, &m.errors,
		&m.compressionSaves, &m.chunkedOperations, &m.invalidations,
		&m.rowsStored, &m.rowsRestored, &m.decodeErrors,
	} {
		c.Store(0)
	}
	m.gets.reset()
	m.sets.reset()
	m.deletes.reset()
}

// MetricsSnapshot is a point-in-time copy of the counters
type MetricsSnapshot struct {
	CacheHits    uint64
	CacheMisses  uint64
	CacheErrors  uint64
	CacheHitRate float64 // percent

	GetOperations    uint64
	SetOperations    uint64
	DeleteOperations uint64

	AvgGetLatency    time.Duration
	AvgSetLatency    time.Duration
	AvgDeleteLatency time.Duration

	CompressionBytesSaved uint64
	ChunkedOperations     uint64
	InvalidationCount     uint64

	RowsStored   uint64
	RowsRestored uint64
	DecodeErrors uint64
}

// Fields returns the snapshot as structured log fields
func (s MetricsSnapshot) Fields() logrus.Fields {
	return logrus.Fields{
		"hits":          s.CacheHits,
		"misses":        s.CacheMisses,
		"errors":        s.CacheErrors,
		"hit_rate":      s.CacheHitRate,
		"avg_get":       s.AvgGetLatency.String(),
		"avg_set":       s.AvgSetLatency.String(),
		"bytes_saved":   s.CompressionBytesSaved,
		"chunked":       s.ChunkedOperations,
		"invalidations": s.InvalidationCount,
		"rows_stored":   s.RowsStored,
		"rows_restored": s.RowsRestored,
		"decode_errors": s.DecodeErrors,
	}
}
