package master

import (
	"sync"
	"time"

	"github.com/anycachefs/anycache"
)

// WorkerState is the master's view of one registered worker.
type WorkerState struct {
	Id              anycache.WorkerId
	Address         string
	CapacityBytes   uint64
	UsedBytes       uint64
	LastHeartbeatMs int64
	Alive           bool
}

// WorkerManager is the registry of workers with an incrementing
// WorkerId allocator, driven by heartbeat liveness per spec.md §4.11.
type WorkerManager struct {
	mu              sync.Mutex
	byId            map[anycache.WorkerId]*WorkerState
	byAddress       map[string]anycache.WorkerId
	nextId          anycache.WorkerId
	heartbeatTimeoutMs int64
}

func NewWorkerManager(heartbeatTimeoutMs int64) *WorkerManager {
	return &WorkerManager{
		byId:               make(map[anycache.WorkerId]*WorkerState),
		byAddress:          make(map[string]anycache.WorkerId),
		nextId:             1,
		heartbeatTimeoutMs: heartbeatTimeoutMs,
	}
}

func nowMillis() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// RegisterWorker re-registers in place if address is already known,
// otherwise allocates a new id.
func (m *WorkerManager) RegisterWorker(address string, capacityBytes uint64) anycache.WorkerId {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byAddress[address]; ok {
		w := m.byId[id]
		w.CapacityBytes = capacityBytes
		w.Alive = true
		w.LastHeartbeatMs = nowMillis()
		return id
	}
	id := m.nextId
	m.nextId++
	m.byId[id] = &WorkerState{
		Id: id, Address: address, CapacityBytes: capacityBytes,
		LastHeartbeatMs: nowMillis(), Alive: true,
	}
	m.byAddress[address] = id
	return id
}

func (m *WorkerManager) Heartbeat(id anycache.WorkerId, capacityBytes, usedBytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byId[id]
	if !ok {
		return anycache.NotFound("worker %d", id)
	}
	w.CapacityBytes = capacityBytes
	w.UsedBytes = usedBytes
	w.LastHeartbeatMs = nowMillis()
	w.Alive = true
	return nil
}

// SelectWorkerForWrite returns the live worker with the largest
// capacity-used, or Unavailable if none are live.
func (m *WorkerManager) SelectWorkerForWrite() (anycache.WorkerId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *WorkerState
	for _, w := range m.byId {
		if !w.Alive {
			continue
		}
		if best == nil || (w.CapacityBytes-w.UsedBytes) > (best.CapacityBytes-best.UsedBytes) {
			best = w
		}
	}
	if best == nil {
		return anycache.InvalidWorkerId, anycache.Unavailable("no live workers")
	}
	return best.Id, nil
}

// CheckHeartbeats marks and returns the ids of workers whose last
// heartbeat is older than heartbeatTimeoutMs.
func (m *WorkerManager) CheckHeartbeats() []anycache.WorkerId {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := nowMillis()
	var dead []anycache.WorkerId
	for id, w := range m.byId {
		if w.Alive && now-w.LastHeartbeatMs > m.heartbeatTimeoutMs {
			w.Alive = false
			dead = append(dead, id)
		}
	}
	return dead
}

func (m *WorkerManager) GetWorker(id anycache.WorkerId) (WorkerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byId[id]
	if !ok {
		return WorkerState{}, anycache.NotFound("worker %d", id)
	}
	return *w, nil
}
