package master

import (
	"path/filepath"
	"testing"

	"github.com/anycachefs/anycache"
)

func openTestInodeStore(t *testing.T) *InodeStore {
	t.Helper()
	store, err := OpenInodeStore(filepath.Join(t.TempDir(), "inodestore"))
	if err != nil {
		t.Fatalf("OpenInodeStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInodeStorePutGetInode(t *testing.T) {
	store := openTestInodeStore(t)
	inode := &anycache.Inode{
		Id: 5, ParentId: anycache.RootInodeId, Name: "a.txt", IsDirectory: false,
		Size: 100, Mode: 0644, Owner: "alice", Group: "eng",
		BlockSize: anycache.DefaultBlockSize, CreationTimeMs: 1, ModificationTimeMs: 1,
	}
	batch := store.NewBatch()
	store.BatchPutInode(batch, inode)
	if err := store.CommitBatch(batch); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	got, err := store.GetInode(5)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if got.Name != "a.txt" || got.Size != 100 || got.Owner != "alice" {
		t.Fatalf("unexpected inode: %+v", got)
	}
}

func TestInodeStoreGetInodeNotFound(t *testing.T) {
	store := openTestInodeStore(t)
	if _, err := store.GetInode(999); !anycache.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestInodeStoreMultiGetInodes(t *testing.T) {
	store := openTestInodeStore(t)
	batch := store.NewBatch()
	for i := anycache.InodeId(1); i <= 3; i++ {
		store.BatchPutInode(batch, &anycache.Inode{Id: i, ParentId: anycache.RootInodeId, Name: "f"})
	}
	if err := store.CommitBatch(batch); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	got, err := store.MultiGetInodes([]anycache.InodeId{1, 2, 3, 999})
	if err != nil {
		t.Fatalf("MultiGetInodes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("MultiGetInodes returned %d entries, want 3 (999 should be absent)", len(got))
	}
}

func TestInodeStoreNextIdRoundTrip(t *testing.T) {
	store := openTestInodeStore(t)
	first, err := store.GetNextId()
	if err != nil {
		t.Fatalf("GetNextId: %v", err)
	}
	if first != anycache.RootInodeId+1 {
		t.Fatalf("GetNextId on fresh store = %d, want %d", first, anycache.RootInodeId+1)
	}

	batch := store.NewBatch()
	store.BatchPutNextId(batch, 5000)
	if err := store.CommitBatch(batch); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	got, err := store.GetNextId()
	if err != nil {
		t.Fatalf("GetNextId: %v", err)
	}
	if got != 5000 {
		t.Fatalf("GetNextId = %d, want 5000", got)
	}
}

func TestInodeStoreScanDirectoryInodesAndEdges(t *testing.T) {
	store := openTestInodeStore(t)
	dir := &anycache.Inode{Id: 10, ParentId: anycache.RootInodeId, Name: "d", IsDirectory: true}
	file := &anycache.Inode{Id: 11, ParentId: 10, Name: "f.txt", IsDirectory: false}

	batch := store.NewBatch()
	store.BatchPutInode(batch, dir)
	store.BatchPutInode(batch, file)
	store.BatchPutEdge(batch, anycache.RootInodeId, "d", dir.Id)
	store.BatchPutEdge(batch, dir.Id, "f.txt", file.Id)
	if err := store.CommitBatch(batch); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	dirs, err := store.ScanDirectoryInodes()
	if err != nil {
		t.Fatalf("ScanDirectoryInodes: %v", err)
	}
	found := false
	for _, d := range dirs {
		if d.Id == dir.Id {
			found = true
		}
		if d.Id == file.Id {
			t.Fatalf("ScanDirectoryInodes returned a non-directory inode")
		}
	}
	if !found {
		t.Fatalf("ScanDirectoryInodes did not return directory inode %d", dir.Id)
	}

	edges, err := store.ScanAllEdges()
	if err != nil {
		t.Fatalf("ScanAllEdges: %v", err)
	}
	if edges[anycache.RootInodeId]["d"] != dir.Id {
		t.Fatalf("missing root->d edge")
	}
	if edges[dir.Id]["f.txt"] != file.Id {
		t.Fatalf("missing d->f.txt edge")
	}
}

func TestInodeStoreOwnerGroupDictPersistsAcrossPuts(t *testing.T) {
	store := openTestInodeStore(t)
	batch := store.NewBatch()
	store.BatchPutInode(batch, &anycache.Inode{Id: 20, ParentId: anycache.RootInodeId, Name: "x", Owner: "carol", Group: "ops"})
	if err := store.CommitBatch(batch); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	got, err := store.GetInode(20)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if got.Owner != "carol" || got.Group != "ops" {
		t.Fatalf("owner/group not preserved: %+v", got)
	}
}
