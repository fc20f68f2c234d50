// Copyright 2024 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package catalog

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
)

// cacheEntry keys a decoded partition record by its encoded catalog row
// key, so btree order matches catalog order and floor lookups answer
// "which cached partition starts at or before this row".
type cacheEntry struct {
	key catpb.Key
	rec catpb.PartitionRecord
	// covered is the largest row the catalog has proven this partition
	// to contain: when a proximity lookup for some row resolves to this
	// partition, the partition covers every row from its start key up to
	// the looked-up row. Records carry no end key, so rows beyond
	// covered cannot be served from this entry; they may belong to an
	// uncached successor.
	covered []byte
}

// Less implements btree.Item.
func (e *cacheEntry) Less(than btree.Item) bool {
	return e.key.Less(than.(*cacheEntry).key)
}

// PartitionCache caches decoded partition records by catalog row key.
// Entries are only ever as fresh as the lookup that filled them; callers
// that detect a stale location evict and re-look up. Safe for concurrent
// use.
type PartitionCache struct {
	mu   sync.Mutex
	tree *btree.BTree
}

// NewPartitionCache returns an empty cache.
func NewPartitionCache() *PartitionCache {
	return &PartitionCache{tree: btree.New(8)}
}

// Add caches a record under its primary row key. coveredRow is the row
// whose lookup produced the record, the proof of how far the partition
// extends; re-adding a record widens the proven span, never narrows it.
func (c *PartitionCache) Add(rec catpb.PartitionRecord, coveredRow []byte) error {
	key, err := keys.MakePartitionKey(rec.ID.Primary())
	if err != nil {
		return err
	}
	covered := append([]byte(nil), coveredRow...)
	if bytes.Compare(covered, rec.ID.StartKey) < 0 {
		covered = append([]byte(nil), rec.ID.StartKey...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if item := c.tree.Get(&cacheEntry{key: key}); item != nil {
		if prev := item.(*cacheEntry); bytes.Compare(prev.covered, covered) > 0 {
			covered = prev.covered
		}
	}
	c.tree.ReplaceOrInsert(&cacheEntry{key: key, rec: rec, covered: covered})
	return nil
}

// Evict drops the cached record for the given partition, reporting
// whether one was present.
func (c *PartitionCache) Evict(id catpb.PartitionID) bool {
	key, err := keys.MakePartitionKey(id.Primary())
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Delete(&cacheEntry{key: key}) != nil
}

// LookupFloor returns the cached partition of table that is proven to
// contain row: the greatest cached entry at or below row, and only if
// row falls within the span the catalog has confirmed for it. A floor
// entry whose proven span ends before row is not served; an uncached
// partition could start between the two, so answering would risk a
// wrong location with no staleness signal for the caller to act on. A
// miss says nothing about the catalog; the caller falls through to a
// real lookup.
func (c *PartitionCache) LookupFloor(table string, row []byte) (catpb.PartitionRecord, bool) {
	tableStart, _ := keys.TableSpan(table)
	_, probe, err := keys.ClosestPartitionBounds(table, row)
	if err != nil {
		return catpb.PartitionRecord{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var found *cacheEntry
	c.tree.DescendLessOrEqual(&cacheEntry{key: probe}, func(i btree.Item) bool {
		e := i.(*cacheEntry)
		if e.key.Less(tableStart) {
			return false
		}
		found = e
		return false
	})
	if found == nil || bytes.Compare(row, found.covered) > 0 {
		return catpb.PartitionRecord{}, false
	}
	return found.rec, true
}

// Len returns the number of cached records.
func (c *PartitionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Len()
}

// Clear drops every cached record.
func (c *PartitionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Clear(false)
}
