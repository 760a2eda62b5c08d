package worker

import (
	"testing"

	"github.com/anycachefs/anycache"
)

func TestLFUEvictionScenario(t *testing.T) {
	cm := NewCacheManager(PolicyLFU)
	b1, b2, b3 := anycache.BlockId(1), anycache.BlockId(2), anycache.BlockId(3)
	cm.OnInsert(b1, 100)
	cm.OnInsert(b2, 100)
	cm.OnInsert(b3, 100)

	cm.OnAccess(b1)
	cm.OnAccess(b1)
	cm.OnAccess(b1)
	cm.OnAccess(b3)

	victims := cm.GetEvictionCandidates(100)
	if len(victims) != 1 || victims[0] != b2 {
		t.Fatalf("victims = %v, want [%d]", victims, b2)
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	cm := NewCacheManager(PolicyLRU)
	b1, b2, b3 := anycache.BlockId(1), anycache.BlockId(2), anycache.BlockId(3)
	cm.OnInsert(b1, 10)
	cm.OnInsert(b2, 10)
	cm.OnInsert(b3, 10)
	cm.OnAccess(b1)

	victims := cm.GetEvictionCandidates(20)
	if len(victims) != 2 || victims[0] != b2 || victims[1] != b3 {
		t.Fatalf("victims = %v, want [%d %d]", victims, b2, b3)
	}
}

func TestCacheManagerTotalBytesInvariant(t *testing.T) {
	cm := NewCacheManager(PolicyLRU)
	cm.OnInsert(1, 50)
	cm.OnInsert(2, 75)
	if got := cm.TotalCachedBytes(); got != 125 {
		t.Fatalf("totalCachedBytes = %d, want 125", got)
	}
	cm.Remove(1)
	if got := cm.TotalCachedBytes(); got != 75 {
		t.Fatalf("totalCachedBytes after remove = %d, want 75", got)
	}
}
