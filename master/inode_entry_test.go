package master

import (
	"reflect"
	"testing"

	"github.com/anycachefs/anycache"
)

func TestInodeEntryRoundTrip(t *testing.T) {
	dict := NewOwnerGroupDict()
	inode := &anycache.Inode{
		Id: 42, ParentId: 1, Name: "file.dat", IsDirectory: false,
		Size: 12345, Mode: 0644, Owner: "alice", Group: "eng",
		BlockSize: anycache.DefaultBlockSize, CreationTimeMs: 1000, ModificationTimeMs: 2000,
		IsComplete: true,
	}
	buf := encodeInodeEntry(inode, dict)
	if len(buf) != inodeEntryHeaderSize+len(inode.Name) {
		t.Fatalf("encoded length = %d, want %d", len(buf), inodeEntryHeaderSize+len(inode.Name))
	}
	got, err := decodeInodeEntry(inode.Id, buf, dict)
	if err != nil {
		t.Fatalf("decodeInodeEntry: %v", err)
	}
	got.Children = inode.Children // not persisted; excluded from comparison
	if !reflect.DeepEqual(*got, *inode) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", *got, *inode)
	}
}

func TestOwnerGroupDictAssignsStableIds(t *testing.T) {
	dict := NewOwnerGroupDict()
	id1 := dict.GetOrAddOwnerId("alice")
	id2 := dict.GetOrAddOwnerId("bob")
	id1Again := dict.GetOrAddOwnerId("alice")
	if id1 != id1Again {
		t.Fatalf("expected stable id for repeated owner, got %d then %d", id1, id1Again)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct ids for distinct owners")
	}
	if dict.GetOwner(id1) != "alice" || dict.GetOwner(id2) != "bob" {
		t.Fatalf("owner lookup mismatch")
	}
	if dict.GetOrAddOwnerId("") != 0 {
		t.Fatalf("empty owner must map to id 0")
	}
}

func TestOwnerGroupDictSerializeRoundTrip(t *testing.T) {
	dict := NewOwnerGroupDict()
	dict.GetOrAddOwnerId("alice")
	dict.GetOrAddOwnerId("bob")
	serialized := dict.SerializeOwners()

	loaded := NewOwnerGroupDict()
	loaded.LoadOwners(serialized)
	if loaded.GetOwner(1) != "alice" || loaded.GetOwner(2) != "bob" {
		t.Fatalf("dictionary did not survive serialize/load round trip")
	}
}

func TestEdgeKeyPrefixScanOrdering(t *testing.T) {
	key := edgeKey(7, "child")
	prefix := edgeKeyPrefix(7)
	if len(key) < len(prefix) {
		t.Fatalf("edge key shorter than its own prefix")
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			t.Fatalf("edge key does not start with its parent prefix")
		}
	}
	if childNameFromEdgeKey(key) != "child" {
		t.Fatalf("childNameFromEdgeKey = %q, want %q", childNameFromEdgeKey(key), "child")
	}
}
