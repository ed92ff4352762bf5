package hostsim

import (
	"bytes"
	"errors"
	"slices"
	"sync"

	"github.com/google/btree"
)

var errStorageClosed = errors.New("storage closed")

const memBucketSep = "\x00"

type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStorageClosed
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, errStorageClosed
		}
		s.writer = true
	}

	// Each transaction works on its own copy; Commit swaps it in.
	snap := make(map[string]*memBucket, len(s.buckets))
	for k, b := range s.buckets {
		if writable {
			b = b.clone()
		}
		snap[k] = b
	}
	return &memTx{base: s, writable: writable, buckets: snap}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	b := tx.buckets[name+memBucketSep+sub]
	if b == nil {
		return nil
	}
	return memBucketHandle{tx: tx, b: b}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return nil, errTxNotWritable
	}
	if root := name + memBucketSep; tx.buckets[root] == nil {
		tx.buckets[root] = newMemBucket()
	}
	key := name + memBucketSep + sub
	b := tx.buckets[key]
	if b == nil {
		b = newMemBucket()
		tx.buckets[key] = b
	}
	return memBucketHandle{tx: tx, b: b}, nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return errTxNotWritable
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return errStorageClosed
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

var errTxNotWritable = errors.New("tx not writable")

// memBucket is a copy-on-write ordered map; clones share nodes until written.
type memBucket struct {
	tree *btree.BTreeG[memKV]
}

type memKV struct {
	key   []byte
	value []byte
}

func lessKV(a, b memKV) bool {
	return bytes.Compare(a.key, b.key) < 0
}

func newMemBucket() *memBucket {
	return &memBucket{tree: btree.NewG(16, lessKV)}
}

func (b *memBucket) clone() *memBucket {
	return &memBucket{tree: b.tree.Clone()}
}

type memBucketHandle struct {
	tx *memTx
	b  *memBucket
}

func (b memBucketHandle) Get(key []byte) []byte {
	kv, ok := b.b.tree.Get(memKV{key: key})
	if !ok {
		return nil
	}
	return kv.value
}

func (b memBucketHandle) Put(key, value []byte) error {
	if !b.tx.writable {
		return errTxNotWritable
	}
	b.b.tree.ReplaceOrInsert(memKV{key: slices.Clone(key), value: slices.Clone(value)})
	return nil
}

func (b memBucketHandle) Delete(key []byte) error {
	if !b.tx.writable {
		return errTxNotWritable
	}
	b.b.tree.Delete(memKV{key: key})
	return nil
}

func (b memBucketHandle) Cursor() storageCursor {
	return &memCursor{tree: b.b.tree}
}

func (b memBucketHandle) KeyCount() int { return b.b.tree.Len() }

// memCursor resumes from the last key on each step, so it tolerates writes
// to the tree between steps.
type memCursor struct {
	tree *btree.BTreeG[memKV]
	cur  memKV
	done bool
}

func (c *memCursor) First() ([]byte, []byte) {
	kv, ok := c.tree.Min()
	return c.land(kv, ok)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.done {
		return nil, nil
	}
	var next memKV
	found := false
	c.tree.AscendGreaterOrEqual(c.cur, func(kv memKV) bool {
		if bytes.Equal(kv.key, c.cur.key) {
			return true
		}
		next, found = kv, true
		return false
	})
	return c.land(next, found)
}

func (c *memCursor) land(kv memKV, ok bool) ([]byte, []byte) {
	if !ok {
		c.done = true
		return nil, nil
	}
	c.cur = kv
	return kv.key, kv.value
}
