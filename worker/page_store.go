package worker

import (
	"container/list"
	"sync"

	"github.com/anycachefs/anycache"
	"github.com/anycachefs/anycache/metrics"
)

// PageData is one cached page's payload plus dirty flag.
type PageData struct {
	Bytes []byte
	Dirty bool
}

// PageKey identifies a page within PageStore.
type PageKey = anycache.PageKey

// Fetcher fetches a page's bytes on a cache miss, modeling a read from
// UFS. Required: PageStore fails Internal if none is installed.
type Fetcher func(fileId anycache.FileId, pageIdx uint64) ([]byte, error)

type pageEntry struct {
	key  PageKey
	data PageData
}

// PageStore is a bounded, thread-safe LRU cache of fixed-size pages
// indexed by (FileId, pageIdx), per spec.md §4.5.
type PageStore struct {
	mu       sync.Mutex
	order    *list.List
	nodes    map[PageKey]*list.Element
	maxPages int
	pageSize uint64
	fetcher  Fetcher
	metrics  *metrics.PageStoreMetrics

	revMu sync.Mutex
	rev   map[anycache.FileId]map[uint64]struct{}
}

func NewPageStore(pageSize uint64, maxPages int, fetcher Fetcher, m *metrics.PageStoreMetrics) *PageStore {
	if m == nil {
		m = metrics.NoopPageStore()
	}
	return &PageStore{
		order:    list.New(),
		nodes:    make(map[PageKey]*list.Element),
		maxPages: maxPages,
		pageSize: pageSize,
		fetcher:  fetcher,
		metrics:  m,
		rev:      make(map[anycache.FileId]map[uint64]struct{}),
	}
}

func (p *PageStore) trackReverse(key PageKey) {
	p.revMu.Lock()
	defer p.revMu.Unlock()
	set, ok := p.rev[key.FileId]
	if !ok {
		set = make(map[uint64]struct{})
		p.rev[key.FileId] = set
	}
	set[key.PageIdx] = struct{}{}
}

func (p *PageStore) untrackReverse(key PageKey) {
	p.revMu.Lock()
	defer p.revMu.Unlock()
	if set, ok := p.rev[key.FileId]; ok {
		delete(set, key.PageIdx)
		if len(set) == 0 {
			delete(p.rev, key.FileId)
		}
	}
}

// insertLocked inserts or moves-to-back key with data, evicting the
// front entry if the cache is at capacity. Must be called with mu held.
func (p *PageStore) insertLocked(key PageKey, data PageData) {
	if e, ok := p.nodes[key]; ok {
		e.Value = pageEntry{key: key, data: data}
		p.order.MoveToBack(e)
		return
	}
	if p.maxPages > 0 && p.order.Len() >= p.maxPages {
		front := p.order.Front()
		if front != nil {
			victim := front.Value.(pageEntry).key
			p.order.Remove(front)
			delete(p.nodes, victim)
			p.metrics.Evictions.Inc()
			p.untrackReverse(victim)
		}
	}
	p.nodes[key] = p.order.PushBack(pageEntry{key: key, data: data})
	// tracked into the reverse index only after the LRU insert commits
	p.trackReverse(key)
}

// ReadPage copies the cached page's bytes into buf, fetching on miss.
func (p *PageStore) ReadPage(fileId anycache.FileId, idx uint64, buf []byte) (int, error) {
	p.mu.Lock()
	key := PageKey{FileId: fileId, PageIdx: idx}
	if e, ok := p.nodes[key]; ok {
		p.order.MoveToBack(e)
		data := e.Value.(pageEntry).data
		p.mu.Unlock()
		p.metrics.CacheHits.Inc()
		n := copy(buf, data.Bytes)
		return n, nil
	}
	p.mu.Unlock()

	p.metrics.CacheMisses.Inc()
	if p.fetcher == nil {
		return 0, anycache.Internal("page store: no fetcher installed")
	}
	bytes, err := p.fetcher(fileId, idx)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.insertLocked(key, PageData{Bytes: bytes})
	p.mu.Unlock()

	return copy(buf, bytes), nil
}

// WritePage inserts a page marked dirty; flushing is the caller's
// responsibility.
func (p *PageStore) WritePage(fileId anycache.FileId, idx uint64, bytes []byte) {
	p.mu.Lock()
	p.insertLocked(PageKey{FileId: fileId, PageIdx: idx}, PageData{Bytes: bytes, Dirty: true})
	p.mu.Unlock()
	p.metrics.Writes.Inc()
}

// PrefetchPages best-effort fetches not-yet-cached pages [startIdx, startIdx+count).
func (p *PageStore) PrefetchPages(fileId anycache.FileId, startIdx uint64, count uint64) {
	if p.fetcher == nil {
		return
	}
	for i := uint64(0); i < count; i++ {
		idx := startIdx + i
		key := PageKey{FileId: fileId, PageIdx: idx}
		p.mu.Lock()
		_, ok := p.nodes[key]
		p.mu.Unlock()
		if ok {
			continue
		}
		bytes, err := p.fetcher(fileId, idx)
		if err != nil {
			continue
		}
		p.mu.Lock()
		p.insertLocked(key, PageData{Bytes: bytes})
		p.mu.Unlock()
		p.metrics.Prefetches.Inc()
	}
}

// Evict drops the n least-recently-used entries.
func (p *PageStore) Evict(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		front := p.order.Front()
		if front == nil {
			return
		}
		victim := front.Value.(pageEntry).key
		p.order.Remove(front)
		delete(p.nodes, victim)
		p.metrics.Evictions.Inc()
		p.untrackReverse(victim)
	}
}

// InvalidateFile removes every cached page belonging to fileId using
// the reverse index.
func (p *PageStore) InvalidateFile(fileId anycache.FileId) {
	p.revMu.Lock()
	pages := p.rev[fileId]
	idxs := make([]uint64, 0, len(pages))
	for idx := range pages {
		idxs = append(idxs, idx)
	}
	delete(p.rev, fileId)
	p.revMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, idx := range idxs {
		key := PageKey{FileId: fileId, PageIdx: idx}
		if e, ok := p.nodes[key]; ok {
			p.order.Remove(e)
			delete(p.nodes, key)
		}
	}
	p.metrics.FileInvalidations.Inc()
}
