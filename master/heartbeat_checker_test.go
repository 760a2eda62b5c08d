package master

import (
	"context"
	"testing"
	"time"

	"github.com/anycachefs/anycache"
	"github.com/anycachefs/anycache/logx"
)

func TestHeartbeatCheckerInvalidatesDeadWorkerBlocks(t *testing.T) {
	wm := NewWorkerManager(-1) // any elapsed time already exceeds the timeout
	blm := NewBlockLocationMap()
	id := wm.RegisterWorker("10.0.0.5:9000", 1000)
	blockId := anycache.MakeBlockId(3, 0)
	blm.AddBlockLocation(anycache.BlockLocationInfo{BlockId: blockId, WorkerId: id, Tier: anycache.TierSSD})

	checker := NewHeartbeatChecker(wm, blm, time.Millisecond, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := checker.Run(ctx); err != nil && err != context.DeadlineExceeded {
		t.Fatalf("Run returned unexpected error: %v", err)
	}

	if blm.GetReplicaCount(blockId) != 0 {
		t.Fatalf("expected dead worker's block to be invalidated, still has %d replicas", blm.GetReplicaCount(blockId))
	}
	w, err := wm.GetWorker(id)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.Alive {
		t.Fatalf("expected worker to be marked dead after the checker ran")
	}
}
