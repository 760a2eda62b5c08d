package master

import (
	"sort"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/anycachefs/anycache"
	"github.com/anycachefs/anycache/ufs"
)

// MountEntry binds an anycache path prefix to a UFS backend.
type MountEntry struct {
	AnycachePath string
	UfsUri       string
	Handle       ufs.UFS
}

// MountTable is an ordered map from anycachePath to MountEntry, per
// spec.md §4.12. Mount persists to the mount store (if enabled) BEFORE
// updating the in-memory map so a crash between the two simply
// restores from disk on the next open.
type MountTable struct {
	mu      sync.RWMutex
	order   []string // mount paths sorted ascending by key, mirroring std::map's order
	entries map[string]MountEntry
	db      *badger.DB // nil when running without persistence
}

// insertSorted inserts path into order at its sorted position, unless
// it is already present.
func insertSorted(order []string, path string) []string {
	idx := sort.SearchStrings(order, path)
	if idx < len(order) && order[idx] == path {
		return order
	}
	order = append(order, "")
	copy(order[idx+1:], order[idx:])
	order[idx] = path
	return order
}

func NewMountTable() *MountTable {
	return &MountTable{entries: make(map[string]MountEntry)}
}

func OpenPersistentMountTable(dir string) (*MountTable, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, anycache.IOError("open mount table %s: %v", dir, err)
	}
	t := &MountTable{entries: make(map[string]MountEntry), db: db}
	if err := t.loadFromDisk(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MountTable) loadFromDisk() error {
	return t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			path := string(item.Key())
			err := item.Value(func(val []byte) error {
				t.entries[path] = MountEntry{AnycachePath: path, UfsUri: string(val)}
				t.order = insertSorted(t.order, path)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Mount binds anycachePath to a UFS handle constructed for ufsUri.
// Persist happens before the in-memory map is updated.
func (t *MountTable) Mount(anycachePath, ufsUri string, handle ufs.UFS) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.db != nil {
		err := t.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(anycachePath), []byte(ufsUri))
		})
		if err != nil {
			return anycache.IOError("persist mount %s: %v", anycachePath, err)
		}
	}
	t.order = insertSorted(t.order, anycachePath)
	t.entries[anycachePath] = MountEntry{AnycachePath: anycachePath, UfsUri: ufsUri, Handle: handle}
	return nil
}

func (t *MountTable) Unmount(anycachePath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[anycachePath]; !exists {
		return anycache.NotFound("mount %s", anycachePath)
	}
	if t.db != nil {
		err := t.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(anycachePath))
		})
		if err != nil {
			return anycache.IOError("unpersist mount %s: %v", anycachePath, err)
		}
	}
	delete(t.entries, anycachePath)
	for i, p := range t.order {
		if p == anycachePath {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Resolve finds the longest-prefix mount for path by iterating the
// ordered map in reverse; a match holds when path == mount or path
// starts with mount + "/" (with special-casing for a mount ending in
// "/").
func (t *MountTable) Resolve(path string) (ufs.UFS, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.order) - 1; i >= 0; i-- {
		mount := t.order[i]
		entry := t.entries[mount]
		trimmedMount := strings.TrimSuffix(mount, "/")
		if path == trimmedMount {
			return entry.Handle, "/", nil
		}
		if strings.HasPrefix(path, trimmedMount+"/") {
			return entry.Handle, strings.TrimPrefix(path, trimmedMount), nil
		}
	}
	return nil, "", anycache.NotFound("no mount covers %s", path)
}

func (t *MountTable) GetMountPoints() []MountEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]MountEntry, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, t.entries[p])
	}
	return out
}

func (t *MountTable) IsMountPoint(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[path]
	return ok
}

func (t *MountTable) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}
