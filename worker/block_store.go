package worker

import (
	"sort"
	"sync"
	"time"

	"github.com/anycachefs/anycache"
	"github.com/anycachefs/anycache/logx"
	"github.com/anycachefs/anycache/metrics"
)

// BlockStore coordinates the tiers, CacheManager, and MetaStore for
// one worker, per spec.md §4.4.
type BlockStore struct {
	mu   sync.Mutex
	tiers       []*StorageTier // sorted ascending by TierType (Memory first)
	tierByType  map[anycache.TierType]*StorageTier
	blockTier   map[anycache.BlockId]anycache.TierType
	cache       *CacheManager
	meta        MetaStore
	metrics     *metrics.BlockStoreMetrics
	log         *logx.Logger

	highWatermark              float64
	lowWatermark               float64
	autoPromoteAccessThreshold uint64
}

type BlockStoreOptions struct {
	HighWatermark              float64
	LowWatermark               float64
	AutoPromoteAccessThreshold uint64
	Metrics                    *metrics.BlockStoreMetrics
	Log                        *logx.Logger
}

func NewBlockStore(tiers []*StorageTier, cache *CacheManager, meta MetaStore, opts BlockStoreOptions) *BlockStore {
	sorted := append([]*StorageTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type() < sorted[j].Type() })
	byType := make(map[anycache.TierType]*StorageTier, len(sorted))
	for _, t := range sorted {
		byType[t.Type()] = t
	}
	high, low := opts.HighWatermark, opts.LowWatermark
	if high == 0 {
		high = 0.95
	}
	if low == 0 {
		low = 0.80
	}
	threshold := opts.AutoPromoteAccessThreshold
	if threshold == 0 {
		threshold = 3
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop()
	}
	log := opts.Log
	if log == nil {
		log = logx.Nop()
	}
	return &BlockStore{
		tiers:                      sorted,
		tierByType:                 byType,
		blockTier:                  make(map[anycache.BlockId]anycache.TierType),
		cache:                      cache,
		meta:                       meta,
		metrics:                    m,
		log:                        log,
		highWatermark:              high,
		lowWatermark:               low,
		autoPromoteAccessThreshold: threshold,
	}
}

func nowMs() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// CreateBlock allocates blockId somewhere, walking tiers
// fastest-to-slowest; if none has room it evicts from the fastest tier
// and retries once, per spec.md §4.4.
func (b *BlockStore) CreateBlock(blockId anycache.BlockId, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.blockTier[blockId]; exists {
		return anycache.AlreadyExists("block %d already exists", uint64(blockId))
	}
	tier := b.pickTierLocked(size)
	if tier == nil {
		if len(b.tiers) == 0 {
			return anycache.ResourceExhausted("no tiers configured")
		}
		fastest := b.tiers[0]
		b.evictBlocksLocked(fastest, size)
		if fastest.AvailableBytes() < size {
			return anycache.ResourceExhausted("insufficient space for block %d after eviction", uint64(blockId))
		}
		tier = fastest
	}
	if err := tier.AllocateBlock(blockId, size); err != nil {
		return err
	}
	meta := BlockMeta{BlockId: blockId, Length: size, Tier: tier.Type(), CreateTimeMs: nowMs(), LastAccessTimeMs: nowMs()}
	if err := b.meta.Put(meta); err != nil {
		tier.RemoveBlock(blockId)
		return err
	}
	b.blockTier[blockId] = tier.Type()
	b.cache.OnInsert(blockId, size)
	b.metrics.BlocksCreated.Inc()
	b.maybeAutoEvictLocked(tier)
	return nil
}

func (b *BlockStore) pickTierLocked(size uint64) *StorageTier {
	for _, t := range b.tiers {
		if t.AvailableBytes() >= size {
			return t
		}
	}
	return nil
}

// EnsureBlock is a no-op if blockId is already present.
func (b *BlockStore) EnsureBlock(blockId anycache.BlockId, size uint64) error {
	b.mu.Lock()
	_, exists := b.blockTier[blockId]
	b.mu.Unlock()
	if exists {
		return nil
	}
	err := b.CreateBlock(blockId, size)
	if anycache.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (b *BlockStore) ReadBlock(blockId anycache.BlockId, buf []byte, offset uint64) (int, error) {
	b.mu.Lock()
	tierType, ok := b.blockTier[blockId]
	if !ok {
		b.mu.Unlock()
		return 0, anycache.NotFound("block %d", uint64(blockId))
	}
	tier := b.tierByType[tierType]
	b.mu.Unlock()

	n, err := tier.ReadBlock(blockId, buf, offset)
	if err != nil {
		return 0, err
	}
	b.metrics.Reads.Inc()
	b.recordAccess(blockId)
	b.maybeAutoPromote(blockId)
	return n, nil
}

func (b *BlockStore) WriteBlock(blockId anycache.BlockId, buf []byte, offset uint64) error {
	b.mu.Lock()
	tierType, ok := b.blockTier[blockId]
	if !ok {
		b.mu.Unlock()
		return anycache.NotFound("block %d", uint64(blockId))
	}
	tier := b.tierByType[tierType]
	b.mu.Unlock()

	if err := tier.WriteBlock(blockId, buf, offset); err != nil {
		return err
	}
	b.metrics.Writes.Inc()
	b.cache.OnAccess(blockId)
	return nil
}

func (b *BlockStore) recordAccess(blockId anycache.BlockId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	meta, err := b.meta.Get(blockId)
	if err != nil {
		return
	}
	meta.LastAccessTimeMs = nowMs()
	meta.AccessCount++
	b.meta.Put(meta)
	b.cache.OnAccess(blockId)
}

// RemoveBlock removes blockId from its tier, CacheManager, MetaStore,
// and the tier map; idempotent (NotFound from the tier is swallowed).
func (b *BlockStore) RemoveBlock(blockId anycache.BlockId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tierType, ok := b.blockTier[blockId]
	if ok {
		tier := b.tierByType[tierType]
		if err := tier.RemoveBlock(blockId); err != nil && !anycache.IsNotFound(err) {
			return err
		}
	}
	delete(b.blockTier, blockId)
	b.cache.Remove(blockId)
	b.meta.Delete(blockId)
	b.metrics.BlocksRemoved.Inc()
	return nil
}

// PromoteBlock moves blockId to target, exporting from its current
// tier and importing into target. Not crash-atomic (spec.md §9): a
// crash between import and source-removal leaves two copies.
func (b *BlockStore) PromoteBlock(blockId anycache.BlockId, target anycache.TierType) error {
	b.mu.Lock()
	currentType, ok := b.blockTier[blockId]
	if !ok {
		b.mu.Unlock()
		return anycache.NotFound("block %d", uint64(blockId))
	}
	if currentType == target {
		b.mu.Unlock()
		return nil
	}
	srcTier := b.tierByType[currentType]
	dstTier := b.tierByType[target]
	b.mu.Unlock()
	if dstTier == nil {
		return anycache.InvalidArgument("no tier configured for %s", target)
	}

	data, err := srcTier.ExportBlock(blockId)
	if err != nil {
		return err
	}
	if err := dstTier.ImportBlock(blockId, data); err != nil {
		return err
	}
	if err := srcTier.RemoveBlock(blockId); err != nil && !anycache.IsNotFound(err) {
		return err
	}

	b.mu.Lock()
	b.blockTier[blockId] = target
	b.mu.Unlock()

	if meta, err := b.meta.Get(blockId); err == nil {
		meta.Tier = target
		b.meta.Put(meta)
	}
	b.metrics.Promotions.Inc()
	return nil
}

// EvictBlocks asks CacheManager for victims and evicts only those
// actually resident in tier; victims from other tiers are dropped from
// the candidate list but not recovered — an accepted approximation
// (spec.md §9).
func (b *BlockStore) EvictBlocks(tier *StorageTier, bytesNeeded uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictBlocksLocked(tier, bytesNeeded)
}

func (b *BlockStore) evictBlocksLocked(tier *StorageTier, bytesNeeded uint64) {
	candidates := b.cache.GetEvictionCandidates(bytesNeeded)
	for _, id := range candidates {
		if b.blockTier[id] != tier.Type() {
			continue
		}
		tier.RemoveBlock(id)
		delete(b.blockTier, id)
		b.meta.Delete(id)
		b.metrics.Evictions.Inc()
	}
}

func (b *BlockStore) maybeAutoEvictLocked(tier *StorageTier) {
	if tier.CapacityBytes() == 0 {
		return
	}
	usageRatio := float64(tier.UsedBytes()) / float64(tier.CapacityBytes())
	if usageRatio <= b.highWatermark {
		return
	}
	target := uint64(b.lowWatermark * float64(tier.CapacityBytes()))
	if tier.UsedBytes() <= target {
		return
	}
	b.evictBlocksLocked(tier, tier.UsedBytes()-target)
}

func (b *BlockStore) maybeAutoPromote(blockId anycache.BlockId) {
	b.mu.Lock()
	currentType, ok := b.blockTier[blockId]
	if !ok {
		b.mu.Unlock()
		return
	}
	meta, err := b.meta.Get(blockId)
	b.mu.Unlock()
	if err != nil || meta.AccessCount < b.autoPromoteAccessThreshold {
		return
	}
	faster := b.fasterTier(currentType)
	if faster == nil {
		return
	}
	if faster.AvailableBytes() < meta.Length {
		return
	}
	if err := b.PromoteBlock(blockId, faster.Type()); err != nil {
		b.log.Warnf("auto-promote block %d to %s failed: %v", uint64(blockId), faster.Type(), err)
	}
}

func (b *BlockStore) fasterTier(than anycache.TierType) *StorageTier {
	var best *StorageTier
	for _, t := range b.tiers {
		if t.Type() < than {
			if best == nil || t.Type() > best.Type() {
				best = t
			}
		}
	}
	return best
}

// Recover scans MetaStore and repopulates blockTierMap and
// CacheManager for blocks still present on their recorded tier,
// deleting orphaned BlockMeta entries otherwise.
func (b *BlockStore) Recover() error {
	entries, err := b.meta.ScanAll()
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range entries {
		tier := b.tierByType[m.Tier]
		if tier != nil && tier.Has(m.BlockId) {
			b.blockTier[m.BlockId] = m.Tier
			b.cache.OnInsert(m.BlockId, m.Length)
		} else {
			b.meta.Delete(m.BlockId)
		}
	}
	return nil
}

func (b *BlockStore) GetBlockMeta(blockId anycache.BlockId) (BlockMeta, error) {
	return b.meta.Get(blockId)
}

func (b *BlockStore) Tiers() []*StorageTier { return b.tiers }
