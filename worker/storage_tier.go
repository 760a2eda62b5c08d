// Package worker implements the tiered block store that runs on each
// cache worker: StorageTier, MetaStore, CacheManager, BlockStore,
// PageStore, and DataMover.
package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/anycachefs/anycache"
)

// StorageTier is a homogeneous allocator+reader+writer for one tier.
// A Memory tier keeps block payloads as heap buffers; a disk tier
// (SSD/HDD) keeps one file per block under rootPath, named
// block_<blockId>, following the hash-bucketless layout the teacher
// uses for small deployments (no fan-out directories needed at this
// scale).
type StorageTier struct {
	mu       sync.Mutex
	tierType anycache.TierType
	rootPath string
	capacity uint64
	used     uint64
	inMemory bool
	mem      map[anycache.BlockId][]byte
	sizes    map[anycache.BlockId]uint64
}

func NewMemoryTier(tierType anycache.TierType, capacity uint64) *StorageTier {
	return &StorageTier{
		tierType: tierType,
		capacity: capacity,
		inMemory: true,
		mem:      make(map[anycache.BlockId][]byte),
		sizes:    make(map[anycache.BlockId]uint64),
	}
}

func NewDiskTier(tierType anycache.TierType, rootPath string, capacity uint64) (*StorageTier, error) {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, anycache.IOError("storage tier mkdir %s: %v", rootPath, err)
	}
	return &StorageTier{
		tierType: tierType,
		rootPath: rootPath,
		capacity: capacity,
		sizes:    make(map[anycache.BlockId]uint64),
	}, nil
}

func (t *StorageTier) Type() anycache.TierType { return t.tierType }

func (t *StorageTier) blockPath(id anycache.BlockId) string {
	return filepath.Join(t.rootPath, fmt.Sprintf("block_%d", uint64(id)))
}

// AllocateBlock reserves size bytes for blockId.
func (t *StorageTier) AllocateBlock(blockId anycache.BlockId, size uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sizes[blockId]; exists {
		return anycache.AlreadyExists("block %d already allocated in tier", uint64(blockId))
	}
	if t.used+size > t.capacity {
		return anycache.ResourceExhausted("tier %s: need %d, available %d", t.tierType, size, t.capacity-t.used)
	}
	if t.inMemory {
		t.mem[blockId] = make([]byte, size)
	} else {
		f, err := os.OpenFile(t.blockPath(blockId), os.O_CREATE|os.O_RDWR|os.O_EXCL, 0644)
		if err != nil {
			return anycache.IOError("allocate block %d: %v", uint64(blockId), err)
		}
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			os.Remove(t.blockPath(blockId))
			return anycache.IOError("truncate block %d: %v", uint64(blockId), err)
		}
		f.Close()
	}
	t.sizes[blockId] = size
	t.used += size
	return nil
}

func (t *StorageTier) ReadBlock(blockId anycache.BlockId, buf []byte, offset uint64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	size, ok := t.sizes[blockId]
	if !ok {
		return 0, anycache.NotFound("block %d not in tier", uint64(blockId))
	}
	if offset >= size {
		return 0, nil
	}
	n := uint64(len(buf))
	if offset+n > size {
		n = size - offset
	}
	if t.inMemory {
		copy(buf[:n], t.mem[blockId][offset:offset+n])
		return int(n), nil
	}
	f, err := os.Open(t.blockPath(blockId))
	if err != nil {
		return 0, anycache.IOError("read block %d: %v", uint64(blockId), err)
	}
	defer f.Close()
	read, err := f.ReadAt(buf[:n], int64(offset))
	if err != nil && read == 0 {
		return 0, anycache.IOError("read block %d: %v", uint64(blockId), err)
	}
	return read, nil
}

func (t *StorageTier) WriteBlock(blockId anycache.BlockId, buf []byte, offset uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	size, ok := t.sizes[blockId]
	if !ok {
		return anycache.NotFound("block %d not in tier", uint64(blockId))
	}
	if offset+uint64(len(buf)) > size {
		return anycache.InvalidArgument("write past allocated capacity for block %d", uint64(blockId))
	}
	if t.inMemory {
		copy(t.mem[blockId][offset:], buf)
		return nil
	}
	f, err := os.OpenFile(t.blockPath(blockId), os.O_WRONLY, 0644)
	if err != nil {
		return anycache.IOError("write block %d: %v", uint64(blockId), err)
	}
	defer f.Close()
	if _, err := f.WriteAt(buf, int64(offset)); err != nil {
		return anycache.IOError("write block %d: %v", uint64(blockId), err)
	}
	return nil
}

// RemoveBlock releases memory or unlinks the backing file; removing a
// block that is not in the tier returns NotFound and changes nothing.
func (t *StorageTier) RemoveBlock(blockId anycache.BlockId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	size, ok := t.sizes[blockId]
	if !ok {
		return anycache.NotFound("block %d not in tier", uint64(blockId))
	}
	if t.inMemory {
		delete(t.mem, blockId)
	} else {
		if err := os.Remove(t.blockPath(blockId)); err != nil && !os.IsNotExist(err) {
			return anycache.IOError("remove block %d: %v", uint64(blockId), err)
		}
	}
	delete(t.sizes, blockId)
	t.used -= size
	return nil
}

// ExportBlock returns a copy of the full allocated payload.
func (t *StorageTier) ExportBlock(blockId anycache.BlockId) ([]byte, error) {
	t.mu.Lock()
	size, ok := t.sizes[blockId]
	t.mu.Unlock()
	if !ok {
		return nil, anycache.NotFound("block %d not in tier", uint64(blockId))
	}
	out := make([]byte, size)
	if _, err := t.ReadBlock(blockId, out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportBlock allocates blockId at len(data) and writes data into it.
func (t *StorageTier) ImportBlock(blockId anycache.BlockId, data []byte) error {
	if err := t.AllocateBlock(blockId, uint64(len(data))); err != nil {
		return err
	}
	return t.WriteBlock(blockId, data, 0)
}

func (t *StorageTier) Has(blockId anycache.BlockId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sizes[blockId]
	return ok
}

func (t *StorageTier) UsedBytes() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

func (t *StorageTier) CapacityBytes() uint64 {
	return t.capacity
}

func (t *StorageTier) AvailableBytes() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity - t.used
}
