// Package metrics bundles the prometheus handles injected into the
// constructors of the worker's BlockStore, DataMover and PageStore; no
// master component takes a metrics bundle. Nothing in this package
// starts an HTTP listener: exposing /metrics is the ambient metrics
// endpoint concern that spec.md keeps external to the core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BlockStoreMetrics are the counters/histograms BlockStore reports.
type BlockStoreMetrics struct {
	BlocksCreated   prometheus.Counter
	BlocksRemoved   prometheus.Counter
	Reads           prometheus.Counter
	Writes          prometheus.Counter
	Promotions      prometheus.Counter
	Evictions       prometheus.Counter
	ReadLatencyMs   prometheus.Histogram
	WriteLatencyMs  prometheus.Histogram
}

// NewBlockStoreMetrics creates a fresh set of handles registered
// against reg (pass prometheus.NewRegistry() in tests to avoid
// colliding with the default global registry).
func NewBlockStoreMetrics(reg prometheus.Registerer) *BlockStoreMetrics {
	m := &BlockStoreMetrics{
		BlocksCreated:  prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_blockstore_blocks_created_total"}),
		BlocksRemoved:  prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_blockstore_blocks_removed_total"}),
		Reads:          prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_blockstore_reads_total"}),
		Writes:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_blockstore_writes_total"}),
		Promotions:     prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_blockstore_promotions_total"}),
		Evictions:      prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_blockstore_evictions_total"}),
		ReadLatencyMs:  prometheus.NewHistogram(prometheus.HistogramOpts{Name: "anycache_blockstore_read_latency_ms"}),
		WriteLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "anycache_blockstore_write_latency_ms"}),
	}
	if reg != nil {
		reg.MustRegister(m.BlocksCreated, m.BlocksRemoved, m.Reads, m.Writes,
			m.Promotions, m.Evictions, m.ReadLatencyMs, m.WriteLatencyMs)
	}
	return m
}

// Noop returns handles that are never registered anywhere; useful when
// a component is constructed without a registry (e.g. in a unit test
// that doesn't care about metrics).
func Noop() *BlockStoreMetrics {
	return NewBlockStoreMetrics(nil)
}

// DataMoverMetrics are the counters/histograms DataMover reports.
type DataMoverMetrics struct {
	Preloads          prometheus.Counter
	Persists          prometheus.Counter
	Failures          prometheus.Counter
	PreloadLatencyMs  prometheus.Histogram
	PersistLatencyMs  prometheus.Histogram
}

func NewDataMoverMetrics(reg prometheus.Registerer) *DataMoverMetrics {
	m := &DataMoverMetrics{
		Preloads:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_datamover_preloads_total"}),
		Persists:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_datamover_persists_total"}),
		Failures:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_datamover_failures_total"}),
		PreloadLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "anycache_datamover_preload_latency_ms"}),
		PersistLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "anycache_datamover_persist_latency_ms"}),
	}
	if reg != nil {
		reg.MustRegister(m.Preloads, m.Persists, m.Failures, m.PreloadLatencyMs, m.PersistLatencyMs)
	}
	return m
}

func NoopDataMover() *DataMoverMetrics { return NewDataMoverMetrics(nil) }

// PageStoreMetrics are the counters PageStore reports.
type PageStoreMetrics struct {
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	Writes            prometheus.Counter
	Prefetches        prometheus.Counter
	Evictions         prometheus.Counter
	FileInvalidations prometheus.Counter
}

func NewPageStoreMetrics(reg prometheus.Registerer) *PageStoreMetrics {
	m := &PageStoreMetrics{
		CacheHits:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_pagestore_cache_hits_total"}),
		CacheMisses:       prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_pagestore_cache_misses_total"}),
		Writes:            prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_pagestore_writes_total"}),
		Prefetches:        prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_pagestore_prefetches_total"}),
		Evictions:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_pagestore_evictions_total"}),
		FileInvalidations: prometheus.NewCounter(prometheus.CounterOpts{Name: "anycache_pagestore_file_invalidations_total"}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheMisses, m.Writes, m.Prefetches, m.Evictions, m.FileInvalidations)
	}
	return m
}

func NoopPageStore() *PageStoreMetrics { return NewPageStoreMetrics(nil) }
