// Copyright 2025 The Recordsplit Authors
// This file is part of Recordsplit.
//
// Recordsplit is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Recordsplit is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Recordsplit. If not, see <http://www.gnu.org/licenses/>.

// Package memkv is an in-memory KVS and TransactionLocal implementation
// used by recordsplit's own tests and the cmd/ demo binaries. It is not
// part of the codec itself — spec.md §1 explicitly places the KVS client
// out of scope — but something has to play that role in-process.
//
// The ordered keyspace is backed by google/btree (as chaosmeng-tidb/kv
// backs its MemBuffer with a B-tree for the same reason: cheap ordered
// range iteration); the per-transaction local-version cache is backed by
// tidwall/btree's generic BTreeG, a small typed ordered map. Nothing in
// this package iterates it in order; it is only read, set and deleted by
// key.
package memkv

import (
	"context"
	"sync"

	"github.com/google/btree"
	tbtree "github.com/tidwall/btree"
	"github.com/turbokv/recordsplit"
)

type entryItem struct {
	key   string
	value []byte
}

func (e entryItem) Less(than btree.Item) bool {
	return e.key < than.(entryItem).key
}

type localVersionItem struct {
	key     string
	version uint16
}

// Store is a single-keyspace, single-transaction in-memory KVS. It
// implements recordsplit.KVS and recordsplit.TransactionLocal directly;
// callers needing real transaction isolation should look elsewhere — this
// is a test double, not a database.
type Store struct {
	mu sync.Mutex

	data *btree.BTree

	localVersions *tbtree.BTreeG[localVersionItem]
	pendingMut    map[string][]byte // versionKey -> mutation-submission value, not yet committed
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		data:          btree.New(32),
		localVersions: tbtree.NewBTreeG(func(a, b localVersionItem) bool { return a.key < b.key }),
		pendingMut:    make(map[string][]byte),
	}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.data.Get(entryItem{key: string(key)})
	if item == nil {
		return nil, nil
	}
	return item.(entryItem).value, nil
}

func (s *Store) Set(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ReplaceOrInsert(entryItem{key: string(key), value: append([]byte(nil), value...)})
	return nil
}

func (s *Store) Clear(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Delete(entryItem{key: string(key)})
	return nil
}

func (s *Store) ClearRange(_ context.Context, begin, end []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var toDelete []entryItem
	iter := func(i btree.Item) bool {
		toDelete = append(toDelete, i.(entryItem))
		return true
	}
	if end == nil {
		s.data.AscendGreaterOrEqual(entryItem{key: string(begin)}, iter)
	} else {
		s.data.AscendRange(entryItem{key: string(begin)}, entryItem{key: string(end)}, iter)
	}
	for _, e := range toDelete {
		s.data.Delete(e)
	}
	return nil
}

// AddVersionstampedValue records a pending set-versionstamped-value
// mutation. It deliberately does NOT write a durable entry: in a real KVS
// that mutation is invisible until commit, and Commit is what resolves it.
func (s *Store) AddVersionstampedValue(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMut[string(key)] = append([]byte(nil), value...)
	return nil
}

// Commit resolves every pending versionstamped mutation using stamp as
// the 10 KVS-assigned bytes, writing the final durable entries. Tests
// exercising pre-commit reads (spec.md §8 scenario S3) should not call
// Commit; tests exercising post-commit durable reads should.
func (s *Store) Commit(stamp [10]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, mutation := range s.pendingMut {
		resolved := resolveVersionstampedValue(mutation, stamp)
		s.data.ReplaceOrInsert(entryItem{key: key, value: resolved})
	}
	s.pendingMut = make(map[string][]byte)
}

// resolveVersionstampedValue fills the 10-byte placeholder pointed at by
// mutation's trailing 4-byte little-endian offset with stamp, and strips
// that trailing offset — mirroring what a real KVS does to a
// set-versionstamped-value mutation at commit (spec.md §6 wire layout).
func resolveVersionstampedValue(mutation []byte, stamp [10]byte) []byte {
	n := len(mutation)
	offset := int(mutation[n-4]) | int(mutation[n-3])<<8 | int(mutation[n-2])<<16 | int(mutation[n-1])<<24
	out := append([]byte(nil), mutation[:n-4]...)
	copy(out[offset:offset+10], stamp[:])
	return out
}

func (s *Store) LocalVersion(primaryKey []byte) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.localVersions.Get(localVersionItem{key: string(primaryKey)})
	if !ok {
		return 0, false
	}
	return item.version, true
}

func (s *Store) AddLocalVersion(primaryKey []byte, localVersion uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localVersions.Set(localVersionItem{key: string(primaryKey), version: localVersion})
}

func (s *Store) RemoveLocalVersion(primaryKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localVersions.Delete(localVersionItem{key: string(primaryKey)})
}

func (s *Store) RemoveVersionMutation(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingMut, string(key))
}

// GetRange implements recordsplit.KVS.GetRange by materializing a snapshot
// slice of the matching committed entries up front; memkv has no real
// suspension points, so the cursor it returns never actually blocks.
func (s *Store) GetRange(_ context.Context, begin, end []byte, opts recordsplit.RangeOptions) recordsplit.RangeCursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []recordsplit.Entry
	iter := func(i btree.Item) bool {
		e := i.(entryItem)
		entries = append(entries, recordsplit.Entry{Key: []byte(e.key), Value: append([]byte(nil), e.value...)})
		return true
	}
	if end == nil {
		s.data.AscendGreaterOrEqual(entryItem{key: string(begin)}, iter)
	} else {
		s.data.AscendRange(entryItem{key: string(begin)}, entryItem{key: string(end)}, iter)
	}
	if opts.Reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	if opts.RowLimit > 0 && len(entries) > opts.RowLimit {
		entries = entries[:opts.RowLimit]
	}
	return &cursor{entries: entries}
}

// NextKey returns the lexicographically smallest byte string strictly
// greater than key, the standard ordered-KVS idiom for turning a
// continuation (the last key consumed) into the next scan's begin bound.
func NextKey(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}
