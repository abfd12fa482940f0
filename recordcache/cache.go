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

// Package recordcache is a read-through cache in front of
// recordsplit.SingleKeyReader.Load, for callers that re-read the same
// small set of hot records across many transactions (SPEC_FULL.md §11.1).
// It is not part of the codec: a cache entry is only ever a snapshot of
// one past Load, and callers owning fresher data (e.g. inside the
// transaction that just wrote a record) must invalidate explicitly.
package recordcache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/turbokv/recordsplit"
)

// Loader is the subset of *recordsplit.SingleKeyReader the cache wraps,
// narrowed so tests can substitute a fake.
type Loader interface {
	Load(ctx context.Context, recordPrefix []byte, opts recordsplit.SingleKeyReaderOptions) (*recordsplit.LogicalRecord, error)
}

// Cache is a bounded read-through LRU keyed on the record prefix. Every
// load through one Cache uses the single SingleKeyReaderOptions it was
// built with, so readers configured differently (e.g. one
// OldVersionFormat and one not) need separate Caches to avoid sharing an
// entry.
type Cache struct {
	mu     sync.Mutex
	loader Loader
	opts   recordsplit.SingleKeyReaderOptions
	lru    *lru.Cache[string, *recordsplit.LogicalRecord]
}

// New builds a Cache of the given capacity (entry count) in front of
// loader, always loading with opts.
func New(loader Loader, opts recordsplit.SingleKeyReaderOptions, capacity int) (*Cache, error) {
	c, err := lru.New[string, *recordsplit.LogicalRecord](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{loader: loader, opts: opts, lru: c}, nil
}

// Load returns the cached record for recordPrefix, loading and caching it
// on a miss. A nil result (record absent) is cached too, so repeated
// misses on a known-absent key don't keep hitting the loader.
func (c *Cache) Load(ctx context.Context, recordPrefix []byte) (*recordsplit.LogicalRecord, error) {
	key := string(recordPrefix)

	c.mu.Lock()
	if rec, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		return rec, nil
	}
	c.mu.Unlock()

	rec, err := c.loader.Load(ctx, recordPrefix, c.opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(key, rec)
	c.mu.Unlock()
	return rec, nil
}

// Invalidate forgets any cached entry for recordPrefix, e.g. after a
// caller's own Writer.Save or Writer.Delete against it.
func (c *Cache) Invalidate(recordPrefix []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(string(recordPrefix))
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
