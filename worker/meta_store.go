package worker

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/anycachefs/anycache"
	"github.com/golang/snappy"
	"github.com/jmhodges/levigo"
)

// BlockMeta is the persisted record MetaStore keeps per block.
type BlockMeta struct {
	BlockId          anycache.BlockId
	Length           uint64
	Tier             anycache.TierType
	CreateTimeMs     int64
	LastAccessTimeMs int64
	AccessCount      uint64
}

const blockMetaEncodedSize = 8 + 8 + 1 + 8 + 8 + 8 // 41 bytes

func encodeBlockMeta(m BlockMeta) []byte {
	buf := make([]byte, blockMetaEncodedSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.BlockId))
	binary.BigEndian.PutUint64(buf[8:16], m.Length)
	buf[16] = byte(m.Tier)
	binary.BigEndian.PutUint64(buf[17:25], uint64(m.CreateTimeMs))
	binary.BigEndian.PutUint64(buf[25:33], uint64(m.LastAccessTimeMs))
	binary.BigEndian.PutUint64(buf[33:41], m.AccessCount)
	return buf
}

func decodeBlockMeta(buf []byte) (BlockMeta, error) {
	if len(buf) != blockMetaEncodedSize {
		return BlockMeta{}, anycache.Internal("corrupt block meta record: %d bytes", len(buf))
	}
	return BlockMeta{
		BlockId:          anycache.BlockId(binary.BigEndian.Uint64(buf[0:8])),
		Length:           binary.BigEndian.Uint64(buf[8:16]),
		Tier:             anycache.TierType(buf[16]),
		CreateTimeMs:     int64(binary.BigEndian.Uint64(buf[17:25])),
		LastAccessTimeMs: int64(binary.BigEndian.Uint64(buf[25:33])),
		AccessCount:      binary.BigEndian.Uint64(buf[33:41]),
	}, nil
}

func blockMetaKey(id anycache.BlockId) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// MetaStore is the persistent BlockId->BlockMeta map each worker uses
// to recover its block index after restart.
type MetaStore interface {
	Put(meta BlockMeta) error
	Get(id anycache.BlockId) (BlockMeta, error)
	Delete(id anycache.BlockId) error
	ScanAll() ([]BlockMeta, error)
	Close() error
}

// LevelMetaStore is the durable levigo-backed implementation, keyed by
// fixed 8-byte big-endian BlockId so an ordered scan visits blocks in
// id order, as spec.md §4.2 requires.
type LevelMetaStore struct {
	db        *levigo.DB
	readOpts  *levigo.ReadOptions
	writeOpts *levigo.WriteOptions
}

func OpenLevelMetaStore(path string) (*LevelMetaStore, error) {
	opts := levigo.NewOptions()
	opts.SetCreateIfMissing(true)
	db, err := levigo.Open(path, opts)
	if err != nil {
		return nil, anycache.IOError("open meta store %s: %v", path, err)
	}
	writeOpts := levigo.NewWriteOptions()
	writeOpts.SetSync(true)
	return &LevelMetaStore{db: db, readOpts: levigo.NewReadOptions(), writeOpts: writeOpts}, nil
}

func (s *LevelMetaStore) Put(meta BlockMeta) error {
	if err := s.db.Put(s.writeOpts, blockMetaKey(meta.BlockId), encodeBlockMeta(meta)); err != nil {
		return anycache.IOError("meta store put %d: %v", uint64(meta.BlockId), err)
	}
	return nil
}

func (s *LevelMetaStore) Get(id anycache.BlockId) (BlockMeta, error) {
	val, err := s.db.Get(s.readOpts, blockMetaKey(id))
	if err != nil {
		return BlockMeta{}, anycache.IOError("meta store get %d: %v", uint64(id), err)
	}
	if val == nil {
		return BlockMeta{}, anycache.NotFound("block meta %d", uint64(id))
	}
	return decodeBlockMeta(val)
}

func (s *LevelMetaStore) Delete(id anycache.BlockId) error {
	if err := s.db.Delete(s.writeOpts, blockMetaKey(id)); err != nil {
		return anycache.IOError("meta store delete %d: %v", uint64(id), err)
	}
	return nil
}

func (s *LevelMetaStore) ScanAll() ([]BlockMeta, error) {
	it := s.db.NewIterator(s.readOpts)
	defer it.Close()
	var out []BlockMeta
	for it.SeekToFirst(); it.Valid(); it.Next() {
		m, err := decodeBlockMeta(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := it.GetError(); err != nil {
		return nil, anycache.IOError("meta store scan: %v", err)
	}
	return out, nil
}

func (s *LevelMetaStore) Close() error {
	s.db.Close()
	return nil
}

// InMemoryMetaStore is the fallback used in environments without a
// durable store (tests, ephemeral workers). Values are compressed with
// snappy to match the space-saving intent of the durable store's
// negotiated compression, even though persistence itself is absent.
type InMemoryMetaStore struct {
	mu      sync.RWMutex
	entries map[anycache.BlockId][]byte
}

func NewInMemoryMetaStore() *InMemoryMetaStore {
	return &InMemoryMetaStore{entries: make(map[anycache.BlockId][]byte)}
}

func (s *InMemoryMetaStore) Put(meta BlockMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[meta.BlockId] = snappy.Encode(nil, encodeBlockMeta(meta))
	return nil
}

func (s *InMemoryMetaStore) Get(id anycache.BlockId) (BlockMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.entries[id]
	if !ok {
		return BlockMeta{}, anycache.NotFound("block meta %d", uint64(id))
	}
	buf, err := snappy.Decode(nil, raw)
	if err != nil {
		return BlockMeta{}, anycache.Internal("corrupt in-memory block meta %d: %v", uint64(id), err)
	}
	return decodeBlockMeta(buf)
}

func (s *InMemoryMetaStore) Delete(id anycache.BlockId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *InMemoryMetaStore) ScanAll() ([]BlockMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]anycache.BlockId, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]BlockMeta, 0, len(ids))
	for _, id := range ids {
		buf, err := snappy.Decode(nil, s.entries[id])
		if err != nil {
			return nil, anycache.Internal("corrupt in-memory block meta %d: %v", uint64(id), err)
		}
		m, err := decodeBlockMeta(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *InMemoryMetaStore) Close() error { return nil }
