package kv

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Store is the single opened column-family key-value store backing the
// entire node (C1). It wraps a cockroachdb/pebble instance the way the
// teacher's core/rawdb wraps an ethdb.KeyValueStore, scoping every column to
// its own key-prefix range within one physical database.
type Store struct {
	db *pebble.DB

	// closeMu protects the closed flag so concurrent or repeated Close calls
	// close the pebble instance once; reads and writes do not take it
	// (pebble itself is safe for concurrent use).
	closeMu sync.RWMutex
	closed  bool
}

// Open opens (creating if absent) a Store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, &ErrIo{Op: "open", Err: err}
	}
	s := &Store{db: db}
	if err := s.ensureSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMem opens an in-memory store, used by tests and by --devnet.
func OpenMem() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: pebble.NewMem()})
	if err != nil {
		return nil, &ErrIo{Op: "open-mem", Err: err}
	}
	s := &Store{db: db}
	if err := s.ensureSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchemaVersion() error {
	_, ok, err := s.Get(Meta, MetaSchemaVersionKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.Put(Meta, MetaSchemaVersionKey, []byte{SchemaVersion})
}

// Close flushes and closes the backing store.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return &ErrIo{Op: "close", Err: err}
	}
	return nil
}

// physicalKey scopes a logical column key into the single pebble keyspace.
func physicalKey(col Column, key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, byte(col))
	out = append(out, key...)
	return out
}

// Get performs a pinned read; ok is false if the key is absent.
func (s *Store) Get(col Column, key []byte) (value []byte, ok bool, err error) {
	v, closer, err := s.db.Get(physicalKey(col, key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &ErrIo{Op: "get/" + col.name(), Err: err}
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put writes a single key, synchronously.
func (s *Store) Put(col Column, key, value []byte) error {
	if err := s.db.Set(physicalKey(col, key), value, pebble.Sync); err != nil {
		return &ErrIo{Op: "put/" + col.name(), Err: err}
	}
	return nil
}

// Delete removes a single key, synchronously.
func (s *Store) Delete(col Column, key []byte) error {
	if err := s.db.Delete(physicalKey(col, key), pebble.Sync); err != nil {
		return &ErrIo{Op: "delete/" + col.name(), Err: err}
	}
	return nil
}

// RangeDelete removes all keys in [lo, hi) of the given column. An empty hi
// means "to the end of the column", used by the pending-overlay reset
// (spec.md §4.2).
func (s *Store) RangeDelete(col Column, lo, hi []byte) error {
	start := physicalKey(col, lo)
	var end []byte
	if len(hi) == 0 {
		end = physicalKey(col+1, nil)
	} else {
		end = physicalKey(col, hi)
	}
	if err := s.db.DeleteRange(start, end, pebble.Sync); err != nil {
		return &ErrIo{Op: "range-delete/" + col.name(), Err: err}
	}
	return nil
}

// SeekLastLE scans backwards from (col, key) and returns the last entry whose
// key is lexicographically <= key within the column, used by the
// per-(addr,blockNum) and (addr,key,blockNum) history columns of C2 (spec.md
// §4.2: "the column is keyed by (addr, block_n) with the largest key ≤
// (addr, N)").
func (s *Store) SeekLastLE(col Column, key []byte) (foundKey, value []byte, ok bool, err error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: physicalKey(col, nil),
		UpperBound: physicalKey(col+1, nil),
	})
	if err != nil {
		return nil, nil, false, &ErrIo{Op: "seek/" + col.name(), Err: err}
	}
	defer iter.Close()

	target := physicalKey(col, key)
	if !iter.SeekLT(append(append([]byte{}, target...), 0x00)) {
		if !iter.Last() {
			return nil, nil, false, nil
		}
		if bytes.Compare(iter.Key(), target) > 0 {
			return nil, nil, false, nil
		}
	} else if bytes.Compare(iter.Key(), target) > 0 {
		return nil, nil, false, nil
	}
	// iter.SeekLT landed on the greatest key strictly less than target+0x00,
	// i.e. the greatest key <= target (since keys sharing the target prefix
	// but longer sort after target, and +0x00 is the immediate successor of
	// target in lexicographic order for this key space).
	fk := append([]byte{}, iter.Key()[1:]...)
	v := append([]byte{}, iter.Value()...)
	return fk, v, true, nil
}

// Batch accumulates writes to be committed atomically via Commit.
type Batch struct {
	b          *pebble.Batch
	disableWAL bool
}

// NewBatch starts a new atomic write batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Put stages a write.
func (b *Batch) Put(col Column, key, value []byte) error {
	return b.b.Set(physicalKey(col, key), value, nil)
}

// Delete stages a delete.
func (b *Batch) Delete(col Column, key []byte) error {
	return b.b.Delete(physicalKey(col, key), nil)
}

// RangeDelete stages a range delete; hi of nil/empty means "rest of column".
func (b *Batch) RangeDelete(col Column, lo, hi []byte) error {
	start := physicalKey(col, lo)
	var end []byte
	if len(hi) == 0 {
		end = physicalKey(col+1, nil)
	} else {
		end = physicalKey(col, hi)
	}
	return b.b.DeleteRange(start, end, nil)
}

// DisableWAL trades crash durability for throughput, used by bulk class
// import (spec.md §4.1: "Bulk writes use disable_wal=true"): Commit then
// applies the batch with pebble.NoSync, so the write-ahead log is still
// written but not synced to disk.
func (b *Batch) DisableWAL() {
	b.disableWAL = true
}

// Commit atomically applies every staged write in the batch (spec.md §4.1:
// "write_batch(batch, {wal?}) -> () — atomic across all columns").
func (b *Batch) Commit() error {
	opts := pebble.Sync
	if b.disableWAL {
		opts = pebble.NoSync
	}
	if err := b.b.Commit(opts); err != nil {
		return &ErrIo{Op: "write-batch", Err: err}
	}
	return nil
}
