package master

import (
	"sync"

	"github.com/anycachefs/anycache"
)

// BlockLocationMap is a dual index: blockLocations for looking up
// which workers hold a block, and workerBlocks for O(|worker blocks|)
// invalidation when a worker dies, per spec.md §4.10.
type BlockLocationMap struct {
	mu             sync.Mutex
	blockLocations map[anycache.BlockId][]anycache.BlockLocationInfo
	workerBlocks   map[anycache.WorkerId]map[anycache.BlockId]struct{}
}

func NewBlockLocationMap() *BlockLocationMap {
	return &BlockLocationMap{
		blockLocations: make(map[anycache.BlockId][]anycache.BlockLocationInfo),
		workerBlocks:   make(map[anycache.WorkerId]map[anycache.BlockId]struct{}),
	}
}

// AddBlockLocation dedups by workerId; a re-report from the same
// worker updates its recorded tier in place.
func (m *BlockLocationMap) AddBlockLocation(loc anycache.BlockLocationInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	locs := m.blockLocations[loc.BlockId]
	for i := range locs {
		if locs[i].WorkerId == loc.WorkerId {
			locs[i] = loc
			return
		}
	}
	m.blockLocations[loc.BlockId] = append(locs, loc)

	set, ok := m.workerBlocks[loc.WorkerId]
	if !ok {
		set = make(map[anycache.BlockId]struct{})
		m.workerBlocks[loc.WorkerId] = set
	}
	set[loc.BlockId] = struct{}{}
}

// RemoveBlockLocation removes one worker's copy of a block; if the
// block's location list becomes empty, its entry is removed entirely.
func (m *BlockLocationMap) RemoveBlockLocation(blockId anycache.BlockId, workerId anycache.WorkerId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(blockId, workerId)
}

func (m *BlockLocationMap) removeLocked(blockId anycache.BlockId, workerId anycache.WorkerId) {
	locs := m.blockLocations[blockId]
	for i, loc := range locs {
		if loc.WorkerId == workerId {
			locs = append(locs[:i], locs[i+1:]...)
			break
		}
	}
	if len(locs) == 0 {
		delete(m.blockLocations, blockId)
	} else {
		m.blockLocations[blockId] = locs
	}
	if set, ok := m.workerBlocks[workerId]; ok {
		delete(set, blockId)
	}
}

// RemoveWorkerBlocks invalidates every block reported by workerId,
// typically called after CheckHeartbeats marks it dead.
func (m *BlockLocationMap) RemoveWorkerBlocks(workerId anycache.WorkerId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blocks := m.workerBlocks[workerId]
	for blockId := range blocks {
		locs := m.blockLocations[blockId]
		for i, loc := range locs {
			if loc.WorkerId == workerId {
				locs = append(locs[:i], locs[i+1:]...)
				break
			}
		}
		if len(locs) == 0 {
			delete(m.blockLocations, blockId)
		} else {
			m.blockLocations[blockId] = locs
		}
	}
	delete(m.workerBlocks, workerId)
}

func (m *BlockLocationMap) GetBlockLocations(blockId anycache.BlockId) []anycache.BlockLocationInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	locs := m.blockLocations[blockId]
	out := make([]anycache.BlockLocationInfo, len(locs))
	copy(out, locs)
	return out
}

func (m *BlockLocationMap) GetReplicaCount(blockId anycache.BlockId) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blockLocations[blockId])
}
