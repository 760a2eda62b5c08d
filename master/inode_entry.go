// Package master implements the namespace owner: the persistent inode
// tree with its two-tier (in-memory directory cache + on-disk
// key-value store) design, mount-table prefix resolution, and the
// worker/block-location tracker driven by heartbeat liveness.
package master

import (
	"encoding/binary"
	"sync"

	"github.com/anycachefs/anycache"
)

const inodeEntryHeaderSize = 48

const (
	flagDirectory uint8 = 0x01
	flagComplete  uint8 = 0x02
)

// Reserved inode-CF keys sort after any legitimate inode id (the high
// 0xFF…FD / FE / FF range), per spec.md §4.7.
const (
	ownerDictInodeId anycache.InodeId = ^anycache.InodeId(0) - 2
	groupDictInodeId anycache.InodeId = ^anycache.InodeId(0) - 1
	nextIdInodeId    anycache.InodeId = ^anycache.InodeId(0)
)

// encodeInodeEntry produces the 48-byte fixed header followed by the
// name bytes, per spec.md §3/§4.7. Byte order is big-endian throughout
// to match the key encoding, so the encoded form does not depend on the
// host's byte order.
func encodeInodeEntry(inode *anycache.Inode, dict *OwnerGroupDict) []byte {
	buf := make([]byte, inodeEntryHeaderSize+len(inode.Name))
	binary.BigEndian.PutUint64(buf[0:8], inode.ParentId)
	binary.BigEndian.PutUint64(buf[8:16], inode.Size)
	binary.BigEndian.PutUint64(buf[16:24], inode.BlockSize)
	binary.BigEndian.PutUint64(buf[24:32], uint64(inode.CreationTimeMs))
	binary.BigEndian.PutUint64(buf[32:40], uint64(inode.ModificationTimeMs))
	binary.BigEndian.PutUint32(buf[40:44], inode.Mode)
	var flags uint8
	if inode.IsDirectory {
		flags |= flagDirectory
	}
	if inode.IsComplete {
		flags |= flagComplete
	}
	buf[44] = flags
	buf[45] = dict.GetOrAddOwnerId(inode.Owner)
	buf[46] = dict.GetOrAddGroupId(inode.Group)
	buf[47] = 0 // padding
	copy(buf[48:], inode.Name)
	return buf
}

// decodeInodeEntry restores every field of an Inode except Children,
// which is reconstructed from the edges column family on recovery.
func decodeInodeEntry(id anycache.InodeId, buf []byte, dict *OwnerGroupDict) (*anycache.Inode, error) {
	if len(buf) < inodeEntryHeaderSize {
		return nil, anycache.Internal("corrupt inode entry %d: %d bytes", id, len(buf))
	}
	flags := buf[44]
	return &anycache.Inode{
		Id:                 id,
		ParentId:           binary.BigEndian.Uint64(buf[0:8]),
		Size:               binary.BigEndian.Uint64(buf[8:16]),
		BlockSize:          binary.BigEndian.Uint64(buf[16:24]),
		CreationTimeMs:     int64(binary.BigEndian.Uint64(buf[24:32])),
		ModificationTimeMs: int64(binary.BigEndian.Uint64(buf[32:40])),
		Mode:               binary.BigEndian.Uint32(buf[40:44]),
		IsDirectory:        flags&flagDirectory != 0,
		IsComplete:         flags&flagComplete != 0,
		Owner:              dict.GetOwner(buf[45]),
		Group:              dict.GetGroup(buf[46]),
		Name:               string(buf[48:]),
	}, nil
}

func inodeKey(id anycache.InodeId) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// edgeKey is BE(parentId) ‖ childName; an ordered prefix scan with
// prefix BE(parentId) lists a directory's children by sorted name.
func edgeKey(parentId anycache.InodeId, childName string) []byte {
	key := make([]byte, 8+len(childName))
	binary.BigEndian.PutUint64(key[0:8], parentId)
	copy(key[8:], childName)
	return key
}

func edgeKeyPrefix(parentId anycache.InodeId) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, parentId)
	return key
}

func edgeValue(childId anycache.InodeId) []byte {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, childId)
	return val
}

func decodeEdgeValue(val []byte) anycache.InodeId {
	return binary.BigEndian.Uint64(val)
}

func childNameFromEdgeKey(key []byte) string {
	return string(key[8:])
}

func nextIdValue(allocEnd anycache.InodeId) []byte {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, allocEnd)
	return val
}

func decodeNextIdValue(val []byte) anycache.InodeId {
	return binary.BigEndian.Uint64(val)
}

// OwnerGroupDict dictionary-encodes owner/group strings as 1-based u8
// ids (0 = empty), persisted at the two reserved inode-CF keys.
type OwnerGroupDict struct {
	mu          sync.Mutex
	owners      []string
	groups      []string
	ownerToId   map[string]uint8
	groupToId   map[string]uint8
	dirty       bool
}

func NewOwnerGroupDict() *OwnerGroupDict {
	return &OwnerGroupDict{
		ownerToId: make(map[string]uint8),
		groupToId: make(map[string]uint8),
	}
}

func (d *OwnerGroupDict) GetOrAddOwnerId(owner string) uint8 {
	return d.getOrAdd(owner, &d.owners, d.ownerToId)
}

func (d *OwnerGroupDict) GetOrAddGroupId(group string) uint8 {
	return d.getOrAdd(group, &d.groups, d.groupToId)
}

func (d *OwnerGroupDict) getOrAdd(s string, list *[]string, ids map[string]uint8) uint8 {
	if s == "" {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := ids[s]; ok {
		return id
	}
	if len(*list) >= 255 {
		return 0
	}
	*list = append(*list, s)
	id := uint8(len(*list))
	ids[s] = id
	d.dirty = true
	return id
}

func (d *OwnerGroupDict) GetOwner(id uint8) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lookupDictEntry(id, d.owners)
}

func (d *OwnerGroupDict) GetGroup(id uint8) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lookupDictEntry(id, d.groups)
}

func lookupDictEntry(id uint8, list []string) string {
	if id == 0 || int(id) > len(list) {
		return ""
	}
	return list[id-1]
}

func (d *OwnerGroupDict) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *OwnerGroupDict) ClearDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = false
}

// SerializeOwners / SerializeGroups encode as [count(1B)][len(1B)|string]...
func (d *OwnerGroupDict) SerializeOwners() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return serializeDictList(d.owners)
}

func (d *OwnerGroupDict) SerializeGroups() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return serializeDictList(d.groups)
}

func serializeDictList(list []string) []byte {
	count := len(list)
	if count > 255 {
		count = 255
	}
	buf := []byte{byte(count)}
	for i := 0; i < count; i++ {
		s := list[i]
		if len(s) > 255 {
			s = s[:255]
		}
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

func (d *OwnerGroupDict) LoadOwners(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners = deserializeDictList(data)
	d.ownerToId = rebuildDictMap(d.owners)
}

func (d *OwnerGroupDict) LoadGroups(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups = deserializeDictList(data)
	d.groupToId = rebuildDictMap(d.groups)
}

func deserializeDictList(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	count := int(data[0])
	pos := 1
	list := make([]string, 0, count)
	for i := 0; i < count && pos < len(data); i++ {
		l := int(data[pos])
		pos++
		actual := l
		if pos+actual > len(data) {
			actual = len(data) - pos
		}
		list = append(list, string(data[pos:pos+actual]))
		pos += actual
	}
	return list
}

func rebuildDictMap(list []string) map[string]uint8 {
	m := make(map[string]uint8, len(list))
	for i, s := range list {
		m[s] = uint8(i + 1)
	}
	return m
}
