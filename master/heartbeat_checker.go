package master

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anycachefs/anycache/logx"
)

// HeartbeatChecker polls WorkerManager on an interval and, for every
// worker whose heartbeat has lapsed, clears its reported blocks from
// BlockLocationMap so the master stops handing out dead replicas, per
// spec.md §4.10/§4.11.
type HeartbeatChecker struct {
	workers   *WorkerManager
	locations *BlockLocationMap
	interval  time.Duration
	log       *logx.Logger
}

func NewHeartbeatChecker(workers *WorkerManager, locations *BlockLocationMap, interval time.Duration, log *logx.Logger) *HeartbeatChecker {
	if log == nil {
		log = logx.Nop()
	}
	return &HeartbeatChecker{workers: workers, locations: locations, interval: interval, log: log}
}

// Run polls until ctx is cancelled. The poll loop runs inside an
// errgroup so a ctx cancellation (or a future second goroutine, such as
// a replica-count reconciler) surfaces through one error channel rather
// than being dropped on the floor.
func (h *HeartbeatChecker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				h.tick()
			}
		}
	})
	return g.Wait()
}

func (h *HeartbeatChecker) tick() {
	dead := h.workers.CheckHeartbeats()
	for _, id := range dead {
		h.locations.RemoveWorkerBlocks(id)
		h.log.Warnf("worker %d heartbeat expired, cleared its reported block locations", id)
	}
}
