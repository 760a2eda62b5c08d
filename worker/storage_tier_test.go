package worker

import (
	"testing"

	"github.com/anycachefs/anycache"
)

func TestMemoryTierAllocateReadWrite(t *testing.T) {
	tier := NewMemoryTier(anycache.TierMemory, 1024)
	id := anycache.MakeBlockId(1, 0)
	if err := tier.AllocateBlock(id, 100); err != nil {
		t.Fatalf("AllocateBlock: %v", err)
	}
	if err := tier.AllocateBlock(id, 100); !anycache.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if err := tier.WriteBlock(id, []byte("hello world"), 0); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	buf := make([]byte, 11)
	n, err := tier.ReadBlock(id, buf, 0)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if string(buf[:n]) != "hello world" {
		t.Fatalf("read %q, want %q", buf[:n], "hello world")
	}
	if got := tier.UsedBytes(); got != 100 {
		t.Fatalf("usedBytes = %d, want 100", got)
	}
}

func TestMemoryTierResourceExhausted(t *testing.T) {
	tier := NewMemoryTier(anycache.TierMemory, 100)
	if err := tier.AllocateBlock(1, 50); err != nil {
		t.Fatalf("AllocateBlock: %v", err)
	}
	if err := tier.AllocateBlock(2, 60); err == nil {
		t.Fatalf("expected ResourceExhausted allocating past capacity")
	}
}

func TestMemoryTierWritePastCapacity(t *testing.T) {
	tier := NewMemoryTier(anycache.TierMemory, 1024)
	if err := tier.AllocateBlock(1, 10); err != nil {
		t.Fatalf("AllocateBlock: %v", err)
	}
	if err := tier.WriteBlock(1, make([]byte, 5), 8); err == nil {
		t.Fatalf("expected InvalidArgument writing past capacity")
	}
}

func TestMemoryTierRemoveIsIdempotentModuloNotFound(t *testing.T) {
	tier := NewMemoryTier(anycache.TierMemory, 1024)
	tier.AllocateBlock(1, 10)
	if err := tier.RemoveBlock(1); err != nil {
		t.Fatalf("RemoveBlock: %v", err)
	}
	if err := tier.RemoveBlock(1); !anycache.IsNotFound(err) {
		t.Fatalf("expected NotFound on second remove, got %v", err)
	}
}

func TestExportImportBlock(t *testing.T) {
	src := NewMemoryTier(anycache.TierMemory, 1024)
	dst := NewMemoryTier(anycache.TierSSD, 1024)
	src.AllocateBlock(1, 5)
	src.WriteBlock(1, []byte("abcde"), 0)

	data, err := src.ExportBlock(1)
	if err != nil {
		t.Fatalf("ExportBlock: %v", err)
	}
	if err := dst.ImportBlock(1, data); err != nil {
		t.Fatalf("ImportBlock: %v", err)
	}
	buf := make([]byte, 5)
	dst.ReadBlock(1, buf, 0)
	if string(buf) != "abcde" {
		t.Fatalf("imported data = %q, want %q", buf, "abcde")
	}
}
