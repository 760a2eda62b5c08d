package master

import (
	"strings"
	"sync"

	"github.com/anycachefs/anycache"
)

const idAllocBatchSize = 1000

// InodeTree is the namespace owner: all directories are held in
// memory (map InodeId→Inode with its children map); file inodes live
// only in the store and are faulted in on demand, per spec.md §4.9.
//
// Lock order: request thread → InodeTree → InodeStore (spec.md §5).
// Reads (GetInodeByPath, ListDirectory) take the shared lock;
// mutations take the exclusive lock.
type InodeTree struct {
	mu    sync.RWMutex
	dirs  map[anycache.InodeId]*anycache.Inode // directories only
	files map[anycache.InodeId]*anycache.Inode // file fallback when store is nil
	store *InodeStore                          // nil in pure-memory mode

	nextId   uint64
	allocEnd uint64
	idMu     sync.Mutex
}

// NewPureMemoryTree builds a tree with no backing store: useful for
// tests and embedded single-process deployments. File inodes are kept
// in the files map instead of being faulted in from a store.
func NewPureMemoryTree() *InodeTree {
	t := &InodeTree{
		dirs:  make(map[anycache.InodeId]*anycache.Inode),
		files: make(map[anycache.InodeId]*anycache.Inode),
	}
	t.dirs[anycache.RootInodeId] = &anycache.Inode{
		Id: anycache.RootInodeId, ParentId: 0, Name: "", IsDirectory: true,
		Children: make(map[string]anycache.InodeId),
	}
	t.nextId = anycache.RootInodeId + 1
	t.allocEnd = t.nextId
	return t
}

// NewTree builds a two-tier tree backed by store. If the store already
// holds the root inode, NewTree calls Recover() to rebuild the directory
// map; otherwise this is a first start and root is created and persisted.
func NewTree(store *InodeStore) (*InodeTree, error) {
	t := &InodeTree{dirs: make(map[anycache.InodeId]*anycache.Inode), files: make(map[anycache.InodeId]*anycache.Inode), store: store}
	if _, err := store.GetInode(anycache.RootInodeId); anycache.IsNotFound(err) {
		root := &anycache.Inode{Id: anycache.RootInodeId, ParentId: 0, Name: "", IsDirectory: true}
		batch := store.NewBatch()
		store.BatchPutInode(batch, root)
		if err := store.CommitBatch(batch); err != nil {
			return nil, err
		}
		t.dirs[anycache.RootInodeId] = &anycache.Inode{Id: anycache.RootInodeId, IsDirectory: true, Children: make(map[string]anycache.InodeId)}
		t.nextId = anycache.RootInodeId + 1
		t.allocEnd = t.nextId
		return t, nil
	} else if err != nil {
		return nil, err
	}
	if err := t.Recover(); err != nil {
		return nil, err
	}
	return t, nil
}

// Recover rebuilds the directory map from ScanDirectoryInodes +
// ScanAllEdges, adding every child edge (file or directory) into its
// parent's in-memory children map.
func (t *InodeTree) Recover() error {
	if t.store == nil {
		return nil
	}
	dirInodes, err := t.store.ScanDirectoryInodes()
	if err != nil {
		return err
	}
	edges, err := t.store.ScanAllEdges()
	if err != nil {
		return err
	}
	nextId, err := t.store.GetNextId()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirs = make(map[anycache.InodeId]*anycache.Inode, len(dirInodes))
	for _, d := range dirInodes {
		d.Children = make(map[string]anycache.InodeId)
		t.dirs[d.Id] = d
	}
	if _, ok := t.dirs[anycache.RootInodeId]; !ok {
		t.dirs[anycache.RootInodeId] = &anycache.Inode{Id: anycache.RootInodeId, IsDirectory: true, Children: make(map[string]anycache.InodeId)}
	}
	for parentId, children := range edges {
		dir, ok := t.dirs[parentId]
		if !ok {
			continue
		}
		for name, childId := range children {
			dir.Children[name] = childId
		}
	}

	t.idMu.Lock()
	t.nextId = nextId
	t.allocEnd = nextId
	t.idMu.Unlock()
	return nil
}

// allocId hands out the next id; every idAllocBatchSize ids it
// extends the persisted alloc_end so next_id never exceeds it.
func (t *InodeTree) allocId() (anycache.InodeId, error) {
	t.idMu.Lock()
	defer t.idMu.Unlock()
	if t.nextId >= t.allocEnd {
		newEnd := t.allocEnd + idAllocBatchSize
		if t.store != nil {
			batch := t.store.NewBatch()
			t.store.BatchPutNextId(batch, newEnd)
			if err := t.store.CommitBatch(batch); err != nil {
				return 0, err
			}
		}
		t.allocEnd = newEnd
	}
	id := t.nextId
	t.nextId++
	return id, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// GetInodeByPath walks the directory map from root; if the final
// component resolves to an id not in the directory map (a file), it
// is faulted in from the store.
func (t *InodeTree) GetInodeByPath(path string) (*anycache.Inode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveLocked(path)
}

func (t *InodeTree) resolveLocked(path string) (*anycache.Inode, error) {
	components := splitPath(path)
	cur := t.dirs[anycache.RootInodeId]
	if cur == nil {
		return nil, anycache.Internal("root inode missing from directory map")
	}
	if len(components) == 0 {
		return cur.Clone(), nil
	}
	for i, name := range components {
		childId, ok := cur.Children[name]
		if !ok {
			return nil, anycache.NotFound("path %s: no such entry %q", path, name)
		}
		last := i == len(components)-1
		if dir, ok := t.dirs[childId]; ok {
			cur = dir
			continue
		}
		if !last {
			return nil, anycache.InvalidArgument("path %s: %q is not a directory", path, name)
		}
		return t.faultInFile(childId)
	}
	return cur.Clone(), nil
}

func (t *InodeTree) faultInFile(id anycache.InodeId) (*anycache.Inode, error) {
	if t.store == nil {
		f, ok := t.files[id]
		if !ok {
			return nil, anycache.NotFound("inode %d", id)
		}
		return f.Clone(), nil
	}
	return t.store.GetInode(id)
}

// CreateFile reserves an inode under parentPath/name and persists it
// before installing it in the directory map.
func (t *InodeTree) CreateFile(parentPath, name string, mode uint32, owner, group string, createTimeMs int64) (*anycache.Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.lookupDirLocked(parentPath)
	if err != nil {
		return nil, err
	}
	if _, exists := parent.Children[name]; exists {
		return nil, anycache.AlreadyExists("%s/%s already exists", parentPath, name)
	}
	id, err := t.allocId()
	if err != nil {
		return nil, err
	}
	inode := &anycache.Inode{
		Id: id, ParentId: parent.Id, Name: name, IsDirectory: false,
		Mode: mode, Owner: owner, Group: group, BlockSize: anycache.DefaultBlockSize,
		CreationTimeMs: createTimeMs, ModificationTimeMs: createTimeMs, IsComplete: false,
	}
	if t.store != nil {
		batch := t.store.NewBatch()
		t.store.BatchPutInode(batch, inode)
		t.store.BatchPutEdge(batch, parent.Id, name, id)
		if err := t.store.CommitBatch(batch); err != nil {
			return nil, err
		}
	} else {
		t.files[id] = inode
	}
	parent.Children[name] = id
	return inode.Clone(), nil
}

// CreateDirectory behaves like CreateFile but the new inode also joins
// the in-memory directory map.
func (t *InodeTree) CreateDirectory(parentPath, name string, mode uint32, owner, group string, createTimeMs int64) (*anycache.Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.lookupDirLocked(parentPath)
	if err != nil {
		return nil, err
	}
	if _, exists := parent.Children[name]; exists {
		return nil, anycache.AlreadyExists("%s/%s already exists", parentPath, name)
	}
	id, err := t.allocId()
	if err != nil {
		return nil, err
	}
	inode := &anycache.Inode{
		Id: id, ParentId: parent.Id, Name: name, IsDirectory: true,
		Mode: mode, Owner: owner, Group: group,
		CreationTimeMs: createTimeMs, ModificationTimeMs: createTimeMs, IsComplete: true,
		Children: make(map[string]anycache.InodeId),
	}
	if t.store != nil {
		batch := t.store.NewBatch()
		t.store.BatchPutInode(batch, inode)
		t.store.BatchPutEdge(batch, parent.Id, name, id)
		if err := t.store.CommitBatch(batch); err != nil {
			return nil, err
		}
	}
	parent.Children[name] = id
	t.dirs[id] = inode
	return inode.Clone(), nil
}

// CompleteFile marks a file as fully written with its final size.
func (t *InodeTree) CompleteFile(path string, size uint64, modTimeMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	inode, err := t.resolveLocked(path)
	if err != nil {
		return err
	}
	if inode.IsDirectory {
		return anycache.InvalidArgument("%s is a directory", path)
	}
	inode.Size = size
	inode.IsComplete = true
	inode.ModificationTimeMs = modTimeMs
	return t.putFileLocked(inode)
}

// UpdateSize updates a file's size (used by truncate); callers must
// remove now-obsolete blocks from the location map BEFORE calling this
// so a crash never exposes dangling blocks (spec.md §7).
func (t *InodeTree) UpdateSize(path string, size uint64, modTimeMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	inode, err := t.resolveLocked(path)
	if err != nil {
		return err
	}
	if inode.IsDirectory {
		return anycache.InvalidArgument("%s is a directory", path)
	}
	inode.Size = size
	inode.ModificationTimeMs = modTimeMs
	return t.putFileLocked(inode)
}

func (t *InodeTree) putFileLocked(inode *anycache.Inode) error {
	if t.store == nil {
		t.files[inode.Id] = inode
		return nil
	}
	batch := t.store.NewBatch()
	t.store.BatchPutInode(batch, inode)
	return t.store.CommitBatch(batch)
}

// Delete removes path, recursively if it names a non-empty directory.
func (t *InodeTree) Delete(path string, recursive bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	inode, err := t.resolveLocked(path)
	if err != nil {
		return err
	}
	if inode.Id == anycache.RootInodeId {
		return anycache.InvalidArgument("cannot delete root")
	}
	parent, ok := t.dirs[inode.ParentId]
	if !ok {
		return anycache.Internal("parent %d of %s missing from directory map", inode.ParentId, path)
	}

	var dirIds, fileIds []anycache.InodeId
	var edges []struct {
		parentId anycache.InodeId
		name     string
	}
	if inode.IsDirectory {
		if !recursive {
			if dir := t.dirs[inode.Id]; dir != nil && len(dir.Children) > 0 {
				return anycache.InvalidArgument("%s is not empty", path)
			}
		}
		t.collectSubtreeLocked(inode.Id, &dirIds, &fileIds, &edges)
	} else {
		fileIds = append(fileIds, inode.Id)
	}
	edges = append(edges, struct {
		parentId anycache.InodeId
		name     string
	}{parent.Id, inode.Name})

	if t.store != nil {
		batch := t.store.NewBatch()
		for _, id := range dirIds {
			t.store.BatchDeleteInode(batch, id)
		}
		for _, id := range fileIds {
			t.store.BatchDeleteInode(batch, id)
		}
		for _, e := range edges {
			t.store.BatchDeleteEdge(batch, e.parentId, e.name)
		}
		if err := t.store.CommitBatch(batch); err != nil {
			return err
		}
	} else {
		for _, id := range fileIds {
			delete(t.files, id)
		}
	}

	delete(parent.Children, inode.Name)
	for _, id := range dirIds {
		delete(t.dirs, id)
	}
	return nil
}

// collectSubtreeLocked performs a DFS over the in-memory directory map
// collecting every directory id, file id, and edge under dirId.
func (t *InodeTree) collectSubtreeLocked(dirId anycache.InodeId, dirIds, fileIds *[]anycache.InodeId, edges *[]struct {
	parentId anycache.InodeId
	name     string
}) {
	*dirIds = append(*dirIds, dirId)
	dir := t.dirs[dirId]
	if dir == nil {
		return
	}
	for name, childId := range dir.Children {
		*edges = append(*edges, struct {
			parentId anycache.InodeId
			name     string
		}{dirId, name})
		if _, ok := t.dirs[childId]; ok {
			t.collectSubtreeLocked(childId, dirIds, fileIds, edges)
		} else {
			*fileIds = append(*fileIds, childId)
		}
	}
}

// Rename moves srcPath to dstPath. If the source is a directory its
// children remain under it (only parent pointer and name change); if
// a file, its store entry is rewritten. Fails AlreadyExists if the
// destination name is taken.
func (t *InodeTree) Rename(srcPath, dstPath string, modTimeMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	srcInode, err := t.resolveLocked(srcPath)
	if err != nil {
		return err
	}
	dstParentPath, dstName := splitParentChild(dstPath)
	dstParent, err := t.lookupDirLocked(dstParentPath)
	if err != nil {
		return err
	}
	if _, exists := dstParent.Children[dstName]; exists {
		return anycache.AlreadyExists("%s already exists", dstPath)
	}
	srcParent, ok := t.dirs[srcInode.ParentId]
	if !ok {
		return anycache.Internal("source parent %d missing", srcInode.ParentId)
	}

	srcInode.ParentId = dstParent.Id
	srcInode.Name = dstName
	srcInode.ModificationTimeMs = modTimeMs

	if t.store != nil {
		batch := t.store.NewBatch()
		t.store.BatchDeleteEdge(batch, srcParent.Id, srcPathBase(srcPath))
		t.store.BatchPutEdge(batch, dstParent.Id, dstName, srcInode.Id)
		t.store.BatchPutInode(batch, srcInode)
		if err := t.store.CommitBatch(batch); err != nil {
			return err
		}
	} else if f, ok := t.files[srcInode.Id]; ok {
		f.ParentId = dstParent.Id
		f.Name = dstName
		f.ModificationTimeMs = modTimeMs
	}

	delete(srcParent.Children, srcPathBase(srcPath))
	dstParent.Children[dstName] = srcInode.Id
	if dir, ok := t.dirs[srcInode.Id]; ok {
		dir.ParentId = dstParent.Id
		dir.Name = dstName
	}
	return nil
}

func srcPathBase(path string) string {
	components := splitPath(path)
	if len(components) == 0 {
		return ""
	}
	return components[len(components)-1]
}

func splitParentChild(path string) (string, string) {
	components := splitPath(path)
	if len(components) == 0 {
		return "/", ""
	}
	parent := "/" + strings.Join(components[:len(components)-1], "/")
	return parent, components[len(components)-1]
}

func (t *InodeTree) lookupDirLocked(path string) (*anycache.Inode, error) {
	inode, err := t.resolveLocked(path)
	if err != nil {
		return nil, err
	}
	dir, ok := t.dirs[inode.Id]
	if !ok {
		return nil, anycache.InvalidArgument("%s is not a directory", path)
	}
	return dir, nil
}

// ListDirectory returns path's immediate children. In pure-memory mode
// all children live in the directory map; in two-tier mode directory
// children are served from memory and file children are fetched with
// MultiGetInodes.
func (t *InodeTree) ListDirectory(path string) ([]*anycache.Inode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dir, err := t.lookupDirLocked(path)
	if err != nil {
		return nil, err
	}
	var out []*anycache.Inode
	var fileIds []anycache.InodeId
	for _, childId := range dir.Children {
		if childDir, ok := t.dirs[childId]; ok {
			out = append(out, childDir.Clone())
		} else {
			fileIds = append(fileIds, childId)
		}
	}
	if len(fileIds) > 0 {
		if t.store == nil {
			for _, id := range fileIds {
				if f, ok := t.files[id]; ok {
					out = append(out, f.Clone())
				}
			}
		} else {
			files, err := t.store.MultiGetInodes(fileIds)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (t *InodeTree) DirCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dirs)
}
