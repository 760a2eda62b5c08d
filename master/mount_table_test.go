package master

import (
	"path/filepath"
	"testing"

	"github.com/anycachefs/anycache/ufs"
)

func TestMountTableLongestPrefixResolve(t *testing.T) {
	mt := NewMountTable()
	root := ufs.NewLocal(t.TempDir())
	sub := ufs.NewLocal(t.TempDir())
	if err := mt.Mount("/", "file://root", root); err != nil {
		t.Fatalf("Mount /: %v", err)
	}
	if err := mt.Mount("/data", "file://data", sub); err != nil {
		t.Fatalf("Mount /data: %v", err)
	}

	handle, rel, err := mt.Resolve("/data/foo/bar.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handle != sub {
		t.Fatalf("expected longest-prefix match to pick /data's handle")
	}
	if rel != "/foo/bar.txt" {
		t.Fatalf("relative path = %q, want %q", rel, "/foo/bar.txt")
	}

	handle2, rel2, err := mt.Resolve("/other/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handle2 != root || rel2 != "/other/file.txt" {
		t.Fatalf("expected root mount to cover unrelated path, got handle=%v rel=%q", handle2, rel2)
	}
}

func TestMountTableLongestPrefixResolveRegistrationOrderIndependent(t *testing.T) {
	mt := NewMountTable()
	root := ufs.NewLocal(t.TempDir())
	sub := ufs.NewLocal(t.TempDir())
	// Mount the deeper path first: Resolve must still prefer it over
	// the root mount regardless of insertion order.
	if err := mt.Mount("/data", "file://data", sub); err != nil {
		t.Fatalf("Mount /data: %v", err)
	}
	if err := mt.Mount("/", "file://root", root); err != nil {
		t.Fatalf("Mount /: %v", err)
	}

	handle, rel, err := mt.Resolve("/data/foo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handle != sub {
		t.Fatalf("expected /data mount to win regardless of registration order")
	}
	if rel != "/foo" {
		t.Fatalf("relative path = %q, want %q", rel, "/foo")
	}
}

func TestMountTableTrailingSlashMount(t *testing.T) {
	mt := NewMountTable()
	h := ufs.NewLocal(t.TempDir())
	if err := mt.Mount("/data/", "file://data", h); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	handle, rel, err := mt.Resolve("/data")
	if err != nil {
		t.Fatalf("Resolve(/data): %v", err)
	}
	if handle != h || rel != "/" {
		t.Fatalf("Resolve(/data) = (%v, %q), want (%v, \"/\")", handle, rel, h)
	}
}

func TestMountTableUnmount(t *testing.T) {
	mt := NewMountTable()
	h := ufs.NewLocal(t.TempDir())
	mt.Mount("/data", "file://data", h)
	if !mt.IsMountPoint("/data") {
		t.Fatalf("expected /data to be a mount point")
	}
	if err := mt.Unmount("/data"); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if mt.IsMountPoint("/data") {
		t.Fatalf("expected /data to no longer be a mount point")
	}
	if _, _, err := mt.Resolve("/data/x"); err == nil {
		t.Fatalf("expected Resolve to fail after Unmount")
	}
}

func TestMountTablePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mounts")
	mt, err := OpenPersistentMountTable(dir)
	if err != nil {
		t.Fatalf("OpenPersistentMountTable: %v", err)
	}
	if err := mt.Mount("/data", "file:///var/data", nil); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := mt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenPersistentMountTable(dir)
	if err != nil {
		t.Fatalf("reopen OpenPersistentMountTable: %v", err)
	}
	defer reopened.Close()
	if !reopened.IsMountPoint("/data") {
		t.Fatalf("expected /data mount to survive reopen")
	}
	points := reopened.GetMountPoints()
	if len(points) != 1 || points[0].UfsUri != "file:///var/data" {
		t.Fatalf("unexpected mount points after reopen: %+v", points)
	}
}
