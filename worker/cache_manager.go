package worker

import (
	"container/list"
	"sync"

	"github.com/anycachefs/anycache"
)

// evictionPolicy is the pluggable victim-selection strategy behind
// CacheManager. LRU and LFU are the two variants spec.md §4.3 names.
type evictionPolicy interface {
	onInsert(id anycache.BlockId)
	onAccess(id anycache.BlockId)
	remove(id anycache.BlockId)
	evict() (anycache.BlockId, bool)
}

// lruPolicy is a doubly-linked list ordered least-recently-used-first
// plus a map for O(1) lookup, per spec.md §4.3.
type lruPolicy struct {
	order *list.List
	nodes map[anycache.BlockId]*list.Element
}

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{order: list.New(), nodes: make(map[anycache.BlockId]*list.Element)}
}

func (p *lruPolicy) onInsert(id anycache.BlockId) {
	if e, ok := p.nodes[id]; ok {
		p.order.MoveToBack(e)
		return
	}
	p.nodes[id] = p.order.PushBack(id)
}

func (p *lruPolicy) onAccess(id anycache.BlockId) {
	if e, ok := p.nodes[id]; ok {
		p.order.MoveToBack(e)
	}
}

func (p *lruPolicy) remove(id anycache.BlockId) {
	if e, ok := p.nodes[id]; ok {
		p.order.Remove(e)
		delete(p.nodes, id)
	}
}

func (p *lruPolicy) evict() (anycache.BlockId, bool) {
	front := p.order.Front()
	if front == nil {
		return 0, false
	}
	id := front.Value.(anycache.BlockId)
	p.order.Remove(front)
	delete(p.nodes, id)
	return id, true
}

// lfuPolicy tracks per-block access frequency with FIFO ordering
// within a frequency bucket, per spec.md §4.3.
type lfuPolicy struct {
	freqOf  map[anycache.BlockId]uint64
	lists   map[uint64]*list.List
	nodes   map[anycache.BlockId]*list.Element
	minFreq uint64
}

func newLFUPolicy() *lfuPolicy {
	return &lfuPolicy{
		freqOf: make(map[anycache.BlockId]uint64),
		lists:  make(map[uint64]*list.List),
		nodes:  make(map[anycache.BlockId]*list.Element),
	}
}

func (p *lfuPolicy) bucket(freq uint64) *list.List {
	l, ok := p.lists[freq]
	if !ok {
		l = list.New()
		p.lists[freq] = l
	}
	return l
}

func (p *lfuPolicy) onInsert(id anycache.BlockId) {
	if _, exists := p.freqOf[id]; exists {
		p.onAccess(id)
		return
	}
	p.freqOf[id] = 1
	p.nodes[id] = p.bucket(1).PushBack(id)
	p.minFreq = 1
}

func (p *lfuPolicy) onAccess(id anycache.BlockId) {
	freq, ok := p.freqOf[id]
	if !ok {
		return
	}
	if e, ok := p.nodes[id]; ok {
		p.bucket(freq).Remove(e)
		if freq == p.minFreq && p.bucket(freq).Len() == 0 {
			p.minFreq = freq + 1
		}
	}
	p.freqOf[id] = freq + 1
	p.nodes[id] = p.bucket(freq + 1).PushBack(id)
}

func (p *lfuPolicy) remove(id anycache.BlockId) {
	freq, ok := p.freqOf[id]
	if !ok {
		return
	}
	if e, ok := p.nodes[id]; ok {
		p.bucket(freq).Remove(e)
	}
	delete(p.freqOf, id)
	delete(p.nodes, id)
}

func (p *lfuPolicy) evict() (anycache.BlockId, bool) {
	for {
		l, ok := p.lists[p.minFreq]
		if !ok || l.Len() == 0 {
			// advance minFreq to the lowest nonempty bucket, if any
			found := false
			for f, bucket := range p.lists {
				if bucket.Len() > 0 && (!found || f < p.minFreq) {
					p.minFreq = f
					found = true
				}
			}
			if !found {
				return 0, false
			}
			continue
		}
		front := l.Front()
		id := front.Value.(anycache.BlockId)
		l.Remove(front)
		delete(p.freqOf, id)
		delete(p.nodes, id)
		if l.Len() == 0 {
			delete(p.lists, p.minFreq)
		}
		return id, true
	}
}

// CacheManager tracks total cached size and delegates victim
// selection to a pluggable policy. All methods are serialized by one
// mutex, per spec.md §4.3 and §5.
type CacheManager struct {
	mu          sync.Mutex
	policy      evictionPolicy
	sizes       map[anycache.BlockId]uint64
	totalBytes  uint64
}

const (
	PolicyLRU = "lru"
	PolicyLFU = "lfu"
)

func NewCacheManager(policyName string) *CacheManager {
	var p evictionPolicy
	if policyName == PolicyLFU {
		p = newLFUPolicy()
	} else {
		p = newLRUPolicy()
	}
	return &CacheManager{policy: p, sizes: make(map[anycache.BlockId]uint64)}
}

func (c *CacheManager) OnInsert(id anycache.BlockId, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, exists := c.sizes[id]; exists {
		c.totalBytes -= old
	}
	c.sizes[id] = size
	c.totalBytes += size
	c.policy.onInsert(id)
}

func (c *CacheManager) OnAccess(id anycache.BlockId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy.onAccess(id)
}

func (c *CacheManager) Remove(id anycache.BlockId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size, exists := c.sizes[id]; exists {
		c.totalBytes -= size
		delete(c.sizes, id)
	}
	c.policy.remove(id)
}

func (c *CacheManager) TotalCachedBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// GetEvictionCandidates repeatedly evicts from the policy, accumulating
// freed size, until it has freed at least bytesNeeded or the policy is
// exhausted.
func (c *CacheManager) GetEvictionCandidates(bytesNeeded uint64) []anycache.BlockId {
	c.mu.Lock()
	defer c.mu.Unlock()
	var candidates []anycache.BlockId
	var freed uint64
	for freed < bytesNeeded {
		id, ok := c.policy.evict()
		if !ok {
			break
		}
		size := c.sizes[id]
		delete(c.sizes, id)
		c.totalBytes -= size
		freed += size
		candidates = append(candidates, id)
	}
	return candidates
}
