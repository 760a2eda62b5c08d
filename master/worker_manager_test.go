package master

import (
	"testing"

	"github.com/anycachefs/anycache"
)

func TestRegisterWorkerReusesIdForSameAddress(t *testing.T) {
	wm := NewWorkerManager(30000)
	id1 := wm.RegisterWorker("10.0.0.1:9000", 1000)
	id2 := wm.RegisterWorker("10.0.0.1:9000", 2000)
	if id1 != id2 {
		t.Fatalf("re-registration from the same address got a new id: %d != %d", id1, id2)
	}
	w, err := wm.GetWorker(id1)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.CapacityBytes != 2000 {
		t.Fatalf("CapacityBytes = %d, want 2000 (updated on re-register)", w.CapacityBytes)
	}
}

func TestHeartbeatUnknownWorkerNotFound(t *testing.T) {
	wm := NewWorkerManager(30000)
	if err := wm.Heartbeat(999, 100, 10); !anycache.IsNotFound(err) {
		t.Fatalf("expected NotFound for unknown worker, got %v", err)
	}
}

func TestSelectWorkerForWritePicksMostFreeCapacity(t *testing.T) {
	wm := NewWorkerManager(30000)
	a := wm.RegisterWorker("a", 1000)
	b := wm.RegisterWorker("b", 1000)
	wm.Heartbeat(a, 1000, 900) // 100 bytes free
	wm.Heartbeat(b, 1000, 100) // 900 bytes free

	chosen, err := wm.SelectWorkerForWrite()
	if err != nil {
		t.Fatalf("SelectWorkerForWrite: %v", err)
	}
	if chosen != b {
		t.Fatalf("chosen worker = %d, want %d (most free capacity)", chosen, b)
	}
}

func TestSelectWorkerForWriteUnavailableWhenNoneAlive(t *testing.T) {
	wm := NewWorkerManager(30000)
	if _, err := wm.SelectWorkerForWrite(); !errorsIsCode(err, anycache.CodeUnavailable) {
		t.Fatalf("expected Unavailable with no registered workers, got %v", err)
	}
}

func TestCheckHeartbeatsMarksDeadAfterTimeout(t *testing.T) {
	wm := NewWorkerManager(-1) // any elapsed time is already a timeout
	id := wm.RegisterWorker("a", 1000)
	dead := wm.CheckHeartbeats()
	if len(dead) != 1 || dead[0] != id {
		t.Fatalf("CheckHeartbeats = %v, want [%d]", dead, id)
	}
	w, err := wm.GetWorker(id)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.Alive {
		t.Fatalf("expected worker to be marked dead")
	}
	if _, err := wm.SelectWorkerForWrite(); !errorsIsCode(err, anycache.CodeUnavailable) {
		t.Fatalf("expected Unavailable once the only worker is dead, got %v", err)
	}
}

func errorsIsCode(err error, code anycache.Code) bool {
	s, ok := err.(*anycache.Status)
	return ok && s.Code() == code
}
