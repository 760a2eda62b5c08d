package master

import (
	"github.com/anycachefs/anycache"
	rdb "github.com/tecbot/gorocksdb"
)

const (
	cfDefault = "default"
	cfInodes  = "inodes"
	cfEdges   = "edges"
)

// InodeStore is the gorocksdb-backed persistence layer over two
// logical column families (inodes, edges), per spec.md §4.8. Atomic
// writes group multiple inode/edge puts and deletes into one batch.
type InodeStore struct {
	db       *rdb.DB
	cfs      []*rdb.ColumnFamilyHandle
	cfDefault *rdb.ColumnFamilyHandle
	cfInodes  *rdb.ColumnFamilyHandle
	cfEdges   *rdb.ColumnFamilyHandle
	readOpts  *rdb.ReadOptions
	writeOpts *rdb.WriteOptions
	dict      *OwnerGroupDict
}

func OpenInodeStore(path string) (*InodeStore, error) {
	dbOpts := rdb.NewDefaultOptions()
	dbOpts.SetCreateIfMissing(true)
	dbOpts.SetCreateIfMissingColumnFamilies(true)

	inodesOpts := rdb.NewDefaultOptions()
	bbto := rdb.NewDefaultBlockBasedTableOptions()
	bbto.SetFilterPolicy(rdb.NewBloomFilter(10))
	inodesOpts.SetBlockBasedTableFactory(bbto)

	edgesOpts := rdb.NewDefaultOptions()
	edgesOpts.SetPrefixExtractor(rdb.NewFixedPrefixTransform(8))

	names := []string{cfDefault, cfInodes, cfEdges}
	opts := []*rdb.Options{dbOpts, inodesOpts, edgesOpts}

	db, handles, err := rdb.OpenDbColumnFamilies(dbOpts, path, names, opts)
	if err != nil {
		return nil, anycache.IOError("open inode store %s: %v", path, err)
	}

	store := &InodeStore{
		db:        db,
		cfs:       handles,
		cfDefault: handles[0],
		cfInodes:  handles[1],
		cfEdges:   handles[2],
		readOpts:  rdb.NewDefaultReadOptions(),
		writeOpts: rdb.NewDefaultWriteOptions(),
		dict:      NewOwnerGroupDict(),
	}
	if err := store.loadDict(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *InodeStore) loadDict() error {
	owners, err := s.db.GetCF(s.readOpts, s.cfInodes, inodeKey(ownerDictInodeId))
	if err != nil {
		return anycache.IOError("load owner dict: %v", err)
	}
	if owners.Exists() {
		s.dict.LoadOwners(owners.Data())
	}
	owners.Free()

	groups, err := s.db.GetCF(s.readOpts, s.cfInodes, inodeKey(groupDictInodeId))
	if err != nil {
		return anycache.IOError("load group dict: %v", err)
	}
	if groups.Exists() {
		s.dict.LoadGroups(groups.Data())
	}
	groups.Free()
	return nil
}

func (s *InodeStore) Dict() *OwnerGroupDict { return s.dict }

func (s *InodeStore) GetInode(id anycache.InodeId) (*anycache.Inode, error) {
	val, err := s.db.GetCF(s.readOpts, s.cfInodes, inodeKey(id))
	if err != nil {
		return nil, anycache.IOError("get inode %d: %v", id, err)
	}
	defer val.Free()
	if !val.Exists() {
		return nil, anycache.NotFound("inode %d", id)
	}
	return decodeInodeEntry(id, val.Data(), s.dict)
}

// MultiGetInodes returns only entries that exist, keyed by id.
func (s *InodeStore) MultiGetInodes(ids []anycache.InodeId) (map[anycache.InodeId]*anycache.Inode, error) {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = inodeKey(id)
	}
	cfs := make([]*rdb.ColumnFamilyHandle, len(ids))
	for i := range cfs {
		cfs[i] = s.cfInodes
	}
	values, err := s.db.MultiGetCFMultiCF(s.readOpts, cfs, keys)
	if err != nil {
		return nil, anycache.IOError("multi-get inodes: %v", err)
	}
	out := make(map[anycache.InodeId]*anycache.Inode, len(ids))
	for i, v := range values {
		if v.Exists() {
			inode, err := decodeInodeEntry(ids[i], v.Data(), s.dict)
			if err != nil {
				v.Free()
				return nil, err
			}
			out[ids[i]] = inode
		}
		v.Free()
	}
	return out, nil
}

func (s *InodeStore) GetNextId() (anycache.InodeId, error) {
	val, err := s.db.GetCF(s.readOpts, s.cfInodes, inodeKey(nextIdInodeId))
	if err != nil {
		return 0, anycache.IOError("get next id: %v", err)
	}
	defer val.Free()
	if !val.Exists() {
		return anycache.RootInodeId + 1, nil
	}
	return decodeNextIdValue(val.Data()), nil
}

func (s *InodeStore) BatchPutNextId(batch *InodeBatch, allocEnd anycache.InodeId) {
	batch.b.PutCF(s.cfInodes, inodeKey(nextIdInodeId), nextIdValue(allocEnd))
}

// InodeBatch groups inode/edge mutations for atomic commit.
type InodeBatch struct {
	b *rdb.WriteBatch
}

func (s *InodeStore) NewBatch() *InodeBatch {
	return &InodeBatch{b: rdb.NewWriteBatch()}
}

func (s *InodeStore) BatchPutInode(batch *InodeBatch, inode *anycache.Inode) {
	batch.b.PutCF(s.cfInodes, inodeKey(inode.Id), encodeInodeEntry(inode, s.dict))
	// on every put, flush the dictionary if it grew since last flush
	if s.dict.IsDirty() {
		batch.b.PutCF(s.cfInodes, inodeKey(ownerDictInodeId), s.dict.SerializeOwners())
		batch.b.PutCF(s.cfInodes, inodeKey(groupDictInodeId), s.dict.SerializeGroups())
		s.dict.ClearDirty()
	}
}

func (s *InodeStore) BatchDeleteInode(batch *InodeBatch, id anycache.InodeId) {
	batch.b.DeleteCF(s.cfInodes, inodeKey(id))
}

func (s *InodeStore) BatchPutEdge(batch *InodeBatch, parentId anycache.InodeId, childName string, childId anycache.InodeId) {
	batch.b.PutCF(s.cfEdges, edgeKey(parentId, childName), edgeValue(childId))
}

func (s *InodeStore) BatchDeleteEdge(batch *InodeBatch, parentId anycache.InodeId, childName string) {
	batch.b.DeleteCF(s.cfEdges, edgeKey(parentId, childName))
}

func (s *InodeStore) CommitBatch(batch *InodeBatch) error {
	defer batch.b.Destroy()
	if err := s.db.Write(s.writeOpts, batch.b); err != nil {
		return anycache.IOError("commit inode batch: %v", err)
	}
	return nil
}

// ScanDirectoryInodes performs a full scan over the inode CF, keeping
// entries whose flags byte has the directory bit set; used at
// InodeTree startup to rebuild the in-memory directory map.
func (s *InodeStore) ScanDirectoryInodes() ([]*anycache.Inode, error) {
	it := s.db.NewIteratorCF(s.readOpts, s.cfInodes)
	defer it.Close()
	var out []*anycache.Inode
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keySlice := it.Key()
		id := decodeInodeKeySlice(keySlice.Data())
		keySlice.Free()
		if isReservedInodeId(id) {
			continue
		}
		valSlice := it.Value()
		val := valSlice.Data()
		if len(val) < inodeEntryHeaderSize || val[44]&flagDirectory == 0 {
			valSlice.Free()
			continue
		}
		inode, err := decodeInodeEntry(id, val, s.dict)
		valSlice.Free()
		if err != nil {
			return nil, err
		}
		out = append(out, inode)
	}
	if err := it.GetError(); err != nil {
		return nil, anycache.IOError("scan directory inodes: %v", err)
	}
	return out, nil
}

// ScanAllEdges performs a total-order scan across the edges CF.
func (s *InodeStore) ScanAllEdges() (map[anycache.InodeId]map[string]anycache.InodeId, error) {
	it := s.db.NewIteratorCF(s.readOpts, s.cfEdges)
	defer it.Close()
	out := make(map[anycache.InodeId]map[string]anycache.InodeId)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keySlice := it.Key()
		key := keySlice.Data()
		if len(key) < 8 {
			keySlice.Free()
			continue
		}
		parentId := decodeInodeKeySlice(key[:8])
		childName := childNameFromEdgeKey(key)
		keySlice.Free()

		valSlice := it.Value()
		childId := decodeEdgeValue(valSlice.Data())
		valSlice.Free()

		children, ok := out[parentId]
		if !ok {
			children = make(map[string]anycache.InodeId)
			out[parentId] = children
		}
		children[childName] = childId
	}
	if err := it.GetError(); err != nil {
		return nil, anycache.IOError("scan all edges: %v", err)
	}
	return out, nil
}

func (s *InodeStore) Close() error {
	s.readOpts.Destroy()
	s.writeOpts.Destroy()
	for _, h := range s.cfs {
		h.Destroy()
	}
	s.db.Close()
	return nil
}

func decodeInodeKeySlice(key []byte) anycache.InodeId {
	var id uint64
	for _, b := range key {
		id = id<<8 | uint64(b)
	}
	return id
}

func isReservedInodeId(id anycache.InodeId) bool {
	return id == ownerDictInodeId || id == groupDictInodeId || id == nextIdInodeId
}
