package worker

import (
	"testing"

	"github.com/anycachefs/anycache"
)

func TestBlockIdRoundTrip(t *testing.T) {
	cases := []struct {
		inode anycache.InodeId
		idx   uint32
	}{
		{1, 0},
		{123456, 17},
		{anycache.MaxInodeId, anycache.MaxBlockIndex},
	}
	for _, c := range cases {
		id := anycache.MakeBlockId(c.inode, c.idx)
		if got := anycache.GetInodeId(id); got != c.inode {
			t.Fatalf("GetInodeId(%d) = %d, want %d", id, got, c.inode)
		}
		if got := anycache.GetBlockIndex(id); got != c.idx {
			t.Fatalf("GetBlockIndex(%d) = %d, want %d", id, got, c.idx)
		}
	}
}

func TestBlockCountBoundaries(t *testing.T) {
	const blockSize = 64 * 1024 * 1024
	if got := anycache.GetBlockCount(0, blockSize); got != 0 {
		t.Fatalf("zero-size file: blockCount = %d, want 0", got)
	}
	if got := anycache.GetBlockCount(blockSize*3, blockSize); got != 3 {
		t.Fatalf("exact boundary: blockCount = %d, want 3", got)
	}
	if got := anycache.GetBlockCount(blockSize*3+1, blockSize); got != 4 {
		t.Fatalf("partial last block: blockCount = %d, want 4", got)
	}
}
