package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Reader exposes read access to an ordered key space.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// Iterate walks every key under prefix in ascending byte order, starting
	// strictly after start when start is non-empty. Returning false from fn
	// stops the walk. Key and value slices are owned by the callee.
	Iterate(prefix, start []byte, fn func(key, value []byte) bool) error
}

// Writer exposes mutation of the key space.
type Writer interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// KV is a readable and writable key space. Both the database itself and an
// open transaction satisfy it.
type KV interface {
	Reader
	Writer
}

// Txn is an exclusive unit of work. Writes become visible to other readers
// only after Commit. Discard drops every buffered write.
type Txn interface {
	KV
	Commit() error
	Discard()
}

// Snapshot is a read-only, point-in-time view of the database.
type Snapshot interface {
	Reader
	Release()
}

// Database is a generic interface for an ordered key-value store.
type Database interface {
	KV
	// Begin opens an exclusive transaction. Only one transaction may be open
	// at a time; a second Begin blocks until the first commits or discards.
	Begin() (Txn, error)
	Snapshot() (Snapshot, error)
	Close() // A way to gracefully shut down the database connection.
}

// LevelDB is a key-value store backed by goleveldb, either on disk or in
// memory.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB returns a LevelDB instance backed by memory only. It shares every
// code path with the on-disk store, including ordering and transactions.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		// The memory backend cannot fail to open.
		panic(fmt.Sprintf("storage: open memory db: %v", err))
	}
	return &LevelDB{db: db}
}

func (l *LevelDB) Get(key []byte) ([]byte, error) { return get(l.db, key) }

func (l *LevelDB) Has(key []byte) (bool, error) { return l.db.Has(key, nil) }

func (l *LevelDB) Iterate(prefix, start []byte, fn func(key, value []byte) bool) error {
	return iterate(l.db, prefix, start, fn)
}

// Put inserts or updates a key-value pair.
func (l *LevelDB) Put(key []byte, value []byte) error { return l.db.Put(key, value, nil) }

func (l *LevelDB) Delete(key []byte) error { return l.db.Delete(key, nil) }

func (l *LevelDB) Begin() (Txn, error) {
	tx, err := l.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("storage: open transaction: %w", err)
	}
	return &levelTxn{tx: tx}, nil
}

func (l *LevelDB) Snapshot() (Snapshot, error) {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("storage: snapshot: %w", err)
	}
	return &levelSnapshot{snap: snap}, nil
}

// Close closes the database connection.
func (l *LevelDB) Close() {
	_ = l.db.Close()
}

type levelTxn struct {
	tx   *leveldb.Transaction
	done bool
}

func (t *levelTxn) Get(key []byte) ([]byte, error) { return get(t.tx, key) }

func (t *levelTxn) Has(key []byte) (bool, error) { return t.tx.Has(key, nil) }

func (t *levelTxn) Iterate(prefix, start []byte, fn func(key, value []byte) bool) error {
	return iterate(t.tx, prefix, start, fn)
}

func (t *levelTxn) Put(key []byte, value []byte) error { return t.tx.Put(key, value, nil) }

func (t *levelTxn) Delete(key []byte) error { return t.tx.Delete(key, nil) }

func (t *levelTxn) Commit() error {
	if t.done {
		return errors.New("storage: transaction already closed")
	}
	t.done = true
	return t.tx.Commit()
}

// Discard is a no-op after Commit.
func (t *levelTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.tx.Discard()
}

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) { return get(s.snap, key) }

func (s *levelSnapshot) Has(key []byte) (bool, error) { return s.snap.Has(key, nil) }

func (s *levelSnapshot) Iterate(prefix, start []byte, fn func(key, value []byte) bool) error {
	return iterate(s.snap, prefix, start, fn)
}

func (s *levelSnapshot) Release() { s.snap.Release() }

type levelReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

func get(r levelReader, key []byte) ([]byte, error) {
	value, err := r.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func iterate(r levelReader, prefix, start []byte, fn func(key, value []byte) bool) error {
	rng := util.BytesPrefix(prefix)
	if len(start) > 0 {
		if !bytes.HasPrefix(start, prefix) {
			return fmt.Errorf("storage: start key outside prefix")
		}
		// The smallest key strictly greater than start is start||0x00.
		from := make([]byte, len(start)+1)
		copy(from, start)
		rng.Start = from
	}
	it := r.NewIterator(rng, nil)
	defer it.Release()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if !fn(key, value) {
			break
		}
	}
	return it.Error()
}
