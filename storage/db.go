package storage

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Iterator walks a contiguous range of keys sharing a common prefix in
// ascending key order. Callers must call Release when finished.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// Database is a generic interface for a key-value store. This allows the
// chain to use any database backend (in-memory or persistent) behind the
// same contract the object store (see objectstore.Store) builds on.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	Close() // A way to gracefully shut down the database connection.
}

// ErrNotFound is returned by Get when a key has no stored value.
var ErrNotFound = fmt.Errorf("storage: key not found")

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// NewIterator returns a prefix iterator over a point-in-time snapshot of the
// map, sorted lexicographically the same way LevelDB orders keys.
func (db *MemDB) NewIterator(prefix []byte) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	keys := make([]string, 0, len(db.data))
	for k := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make([][2][]byte, len(keys))
	for i, k := range keys {
		snapshot[i] = [2][]byte{[]byte(k), append([]byte(nil), db.data[k]...)}
	}
	return &memIterator{entries: snapshot, idx: -1}
}

type memIterator struct {
	entries [][2][]byte
	idx     int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *memIterator) Key() []byte   { return it.entries[it.idx][0] }
func (it *memIterator) Value() []byte { return it.entries[it.idx][1] }
func (it *memIterator) Release()      {}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether a key is present.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Delete removes a key-value pair.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// NewIterator returns a prefix iterator backed by LevelDB's native range scan.
func (ldb *LevelDB) NewIterator(prefix []byte) Iterator {
	it := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &levelIterator{it: it}
}

type levelIterator struct {
	it iterator.Iterator
}

func (i *levelIterator) Next() bool    { return i.it.Next() }
func (i *levelIterator) Key() []byte   { return append([]byte(nil), i.it.Key()...) }
func (i *levelIterator) Value() []byte { return append([]byte(nil), i.it.Value()...) }
func (i *levelIterator) Release()      { i.it.Release() }

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
