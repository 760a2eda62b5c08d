package worker

import (
	"context"
	"sync"

	"github.com/anycachefs/anycache"
	"github.com/anycachefs/anycache/logx"
	"github.com/anycachefs/anycache/metrics"
	"github.com/anycachefs/anycache/ufs"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type taskType int

const (
	taskPreload taskType = iota
	taskPersist
)

// task is a FIFO-queued preload/persist job; its id is a correlation
// id threaded through logging only, it carries no ordering meaning.
type task struct {
	id         string
	kind       taskType
	blockId    anycache.BlockId
	ufsPath    string
	offsetInUfs uint64
	length     uint64
	ufsOverride ufs.UFS
}

// DataMover is a fixed worker-pool consuming a FIFO queue of
// preload/persist tasks against a BlockStore, per spec.md §4.6.
// Threads are spawned at construction and joined on Stop.
type DataMover struct {
	store      *BlockStore
	defaultUFS ufs.UFS
	metrics    *metrics.DataMoverMetrics
	log        *logx.Logger
	limiter    *rate.Limiter

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	active  int
	running bool
	wg      sync.WaitGroup
}

// NewDataMover starts numThreads worker goroutines. defaultUFS is used
// for tasks that don't carry a per-task override; pass nil to require
// every task to specify one (e.g. multi-tenant RPC handlers).
func NewDataMover(store *BlockStore, defaultUFS ufs.UFS, numThreads int, m *metrics.DataMoverMetrics, log *logx.Logger) *DataMover {
	if numThreads <= 0 {
		numThreads = 2
	}
	if m == nil {
		m = metrics.NoopDataMover()
	}
	if log == nil {
		log = logx.Nop()
	}
	d := &DataMover{
		store:      store,
		defaultUFS: defaultUFS,
		metrics:    m,
		log:        log,
		running:    true,
	}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < numThreads; i++ {
		d.wg.Add(1)
		go d.workerLoop()
	}
	return d
}

// WithThrottle installs a token-bucket limiter bounding bytes/sec moved
// by preload/persist tasks.
func (d *DataMover) WithThrottle(limiter *rate.Limiter) *DataMover {
	d.limiter = limiter
	return d
}

func (d *DataMover) submit(t task) {
	d.mu.Lock()
	d.queue = append(d.queue, t)
	d.mu.Unlock()
	d.cond.Signal()
}

func (d *DataMover) SubmitPreload(blockId anycache.BlockId, ufsPath string, offset, length uint64) error {
	return d.SubmitPreloadWithUFS(blockId, ufsPath, offset, length, nil)
}

func (d *DataMover) SubmitPreloadWithUFS(blockId anycache.BlockId, ufsPath string, offset, length uint64, override ufs.UFS) error {
	d.submit(task{id: uuid.NewString(), kind: taskPreload, blockId: blockId, ufsPath: ufsPath, offsetInUfs: offset, length: length, ufsOverride: override})
	return nil
}

func (d *DataMover) SubmitPersist(blockId anycache.BlockId, ufsPath string, offset uint64) error {
	return d.SubmitPersistWithUFS(blockId, ufsPath, offset, nil)
}

func (d *DataMover) SubmitPersistWithUFS(blockId anycache.BlockId, ufsPath string, offset uint64, override ufs.UFS) error {
	d.submit(task{id: uuid.NewString(), kind: taskPersist, blockId: blockId, ufsPath: ufsPath, offsetInUfs: offset, ufsOverride: override})
	return nil
}

// WaitAll blocks until the queue is empty and no task is in flight.
func (d *DataMover) WaitAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 || d.active > 0 {
		d.cond.Wait()
	}
}

// Stop signals worker goroutines to exit once the queue drains and
// joins them.
func (d *DataMover) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	d.cond.Broadcast()
	d.wg.Wait()
}

func (d *DataMover) GetPendingTaskCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *DataMover) workerLoop() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && d.running {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && !d.running {
			d.mu.Unlock()
			return
		}
		t := d.queue[0]
		d.queue = d.queue[1:]
		d.active++
		d.mu.Unlock()

		if err := d.executeTask(t); err != nil {
			d.metrics.Failures.Inc()
			d.log.Warnf("task %s (block %d) failed: %v", t.id, uint64(t.blockId), err)
		}

		d.mu.Lock()
		d.active--
		d.mu.Unlock()
		d.cond.Broadcast()
	}
}

func (d *DataMover) resolveUFS(t task) (ufs.UFS, error) {
	if t.ufsOverride != nil {
		return t.ufsOverride, nil
	}
	if d.defaultUFS != nil {
		return d.defaultUFS, nil
	}
	return nil, anycache.Internal("data mover: no UFS available for task %s", t.id)
}

func (d *DataMover) throttle(n int) {
	if d.limiter == nil {
		return
	}
	d.limiter.WaitN(context.Background(), n)
}

func (d *DataMover) executeTask(t task) error {
	switch t.kind {
	case taskPreload:
		return d.executePreload(t)
	case taskPersist:
		return d.executePersist(t)
	default:
		return anycache.Internal("unknown task type")
	}
}

func (d *DataMover) executePreload(t task) error {
	target, err := d.resolveUFS(t)
	if err != nil {
		return err
	}
	handle, err := target.Open(t.ufsPath)
	if err != nil {
		return err
	}
	buf := make([]byte, t.length)
	n, err := handle.ReadAt(buf, int64(t.offsetInUfs))
	handle.Close()
	if err != nil {
		return err
	}
	d.throttle(n)
	if err := d.store.EnsureBlock(t.blockId, uint64(n)); err != nil {
		return err
	}
	if err := d.store.WriteBlock(t.blockId, buf[:n], 0); err != nil {
		return err
	}
	d.metrics.Preloads.Inc()
	return nil
}

func (d *DataMover) executePersist(t task) error {
	meta, err := d.store.GetBlockMeta(t.blockId)
	if err != nil {
		return err
	}
	buf := make([]byte, meta.Length)
	n, err := d.store.ReadBlock(t.blockId, buf, 0)
	if err != nil {
		return err
	}
	d.throttle(n)

	target, err := d.resolveUFS(t)
	if err != nil {
		return err
	}
	handle, err := target.Create(t.ufsPath, ufs.CreateOptions{Recursive: true})
	if err != nil {
		return err
	}
	defer handle.Close()
	if _, err := handle.WriteAt(buf[:n], int64(t.offsetInUfs)); err != nil {
		return err
	}
	d.metrics.Persists.Inc()
	return nil
}
