package worker

import (
	"testing"

	"github.com/anycachefs/anycache"
)

func newTestBlockStore(tiers []*StorageTier) *BlockStore {
	return NewBlockStore(tiers, NewCacheManager(PolicyLRU), NewInMemoryMetaStore(), BlockStoreOptions{
		AutoPromoteAccessThreshold: 3,
	})
}

func TestCreateReadWriteSingleBlock(t *testing.T) {
	mem := NewMemoryTier(anycache.TierMemory, 1<<20)
	bs := newTestBlockStore([]*StorageTier{mem})

	fid := anycache.InodeId(42)
	blockId := anycache.MakeBlockId(fid, 0)
	payload := []byte("hello world")

	if err := bs.CreateBlock(blockId, uint64(len(payload))); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if err := bs.WriteBlock(blockId, payload, 0); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	buf := make([]byte, len(payload))
	n, err := bs.ReadBlock(blockId, buf, 0)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if string(buf[:n]) != "hello world" {
		t.Fatalf("read %q, want %q", buf[:n], "hello world")
	}
}

func TestAutoPromotionScenario(t *testing.T) {
	mem := NewMemoryTier(anycache.TierMemory, 1<<20)
	ssd := NewMemoryTier(anycache.TierSSD, 1<<20)
	bs := newTestBlockStore([]*StorageTier{mem, ssd})

	blockId := anycache.MakeBlockId(1, 0)
	size := uint64(100 * 1024)
	if err := bs.CreateBlock(blockId, size); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if err := bs.PromoteBlock(blockId, anycache.TierSSD); err != nil {
		t.Fatalf("PromoteBlock to SSD: %v", err)
	}

	buf := make([]byte, size)
	for i := 0; i < 3; i++ {
		if _, err := bs.ReadBlock(blockId, buf, 0); err != nil {
			t.Fatalf("ReadBlock #%d: %v", i, err)
		}
	}

	meta, err := bs.GetBlockMeta(blockId)
	if err != nil {
		t.Fatalf("GetBlockMeta: %v", err)
	}
	if meta.AccessCount < 3 {
		t.Fatalf("accessCount = %d, want >= 3", meta.AccessCount)
	}
	if meta.Tier != anycache.TierMemory {
		t.Fatalf("expected block to migrate back to Memory, got %s", meta.Tier)
	}
	if !mem.Has(blockId) {
		t.Fatalf("expected memory tier to hold the block after auto-promotion")
	}
}

func TestRecoverRepopulatesTierMap(t *testing.T) {
	mem := NewMemoryTier(anycache.TierMemory, 1<<20)
	meta := NewInMemoryMetaStore()
	bs := NewBlockStore([]*StorageTier{mem}, NewCacheManager(PolicyLRU), meta, BlockStoreOptions{})

	blockId := anycache.MakeBlockId(7, 0)
	if err := bs.CreateBlock(blockId, 10); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}

	// simulate a fresh process: new BlockStore sharing the tier and meta store
	bs2 := NewBlockStore([]*StorageTier{mem}, NewCacheManager(PolicyLRU), meta, BlockStoreOptions{})
	if err := bs2.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if _, err := bs2.GetBlockMeta(blockId); err != nil {
		t.Fatalf("GetBlockMeta after recover: %v", err)
	}
	buf := make([]byte, 10)
	if _, err := bs2.ReadBlock(blockId, buf, 0); err != nil {
		t.Fatalf("ReadBlock after recover: %v", err)
	}
}

func TestRemoveBlockIdempotent(t *testing.T) {
	mem := NewMemoryTier(anycache.TierMemory, 1<<20)
	bs := newTestBlockStore([]*StorageTier{mem})
	blockId := anycache.MakeBlockId(1, 0)
	bs.CreateBlock(blockId, 10)
	if err := bs.RemoveBlock(blockId); err != nil {
		t.Fatalf("RemoveBlock: %v", err)
	}
	if err := bs.RemoveBlock(blockId); err != nil {
		t.Fatalf("RemoveBlock should be a no-op the second time: %v", err)
	}
}

func TestCreateBlockTriggersAutoEviction(t *testing.T) {
	mem := NewMemoryTier(anycache.TierMemory, 1000)
	bs := NewBlockStore([]*StorageTier{mem}, NewCacheManager(PolicyLRU), NewInMemoryMetaStore(), BlockStoreOptions{
		HighWatermark: 0.90,
		LowWatermark:  0.50,
	})
	// fill past the high watermark to force an auto-evict pass
	if err := bs.CreateBlock(anycache.MakeBlockId(1, 0), 950); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if got := mem.UsedBytes(); got > 500 {
		t.Fatalf("expected auto-evict to bring usage near the low watermark, usedBytes = %d", got)
	}
}
