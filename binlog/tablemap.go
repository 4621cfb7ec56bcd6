// Copyright 2024 The Avrorouter Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binlog

import (
	"github.com/mitchellh/hashstructure"
)

// TableMap is the decoded form of a TABLE_MAP event, per spec.md §4.G.
type TableMap struct {
	ID             uint64
	Version        uint32
	Flags          uint16
	Database       string
	Table          string
	ColumnTypes    []byte
	ColumnMetadata []byte
	NullBitmap     []byte
	GTID           string
}

// columnSignature returns the part of a TableMap that determines whether
// an incoming TABLE_MAP event replaces the cached entry: column count and
// the column-type vector, per spec.md §4.G ("matches in column count and
// column-type vector").
type columnSignature struct {
	Count int
	Types []byte
}

func (t *TableMap) signature() columnSignature {
	return columnSignature{Count: len(t.ColumnTypes), Types: t.ColumnTypes}
}

func sameSignature(a, b columnSignature) bool {
	ha, err := hashstructure.Hash(a, nil)
	if err != nil {
		return false
	}
	hb, err := hashstructure.Hash(b, nil)
	if err != nil {
		return false
	}
	return ha == hb
}

// TableMapCache holds the table_id -> TableMap mapping. It is not
// internally synchronized: per the concurrency model (spec.md §5), a
// single reader/writer mutex owned by the converter instance guards both
// this cache and the DDL tracker, so callers serialize access themselves.
type TableMapCache struct {
	entries map[uint64]*TableMap
}

// NewTableMapCache returns an empty cache.
func NewTableMapCache() *TableMapCache {
	return &TableMapCache{entries: make(map[uint64]*TableMap)}
}

// Lookup returns the cached TableMap for id, if any.
func (c *TableMapCache) Lookup(id uint64) (*TableMap, bool) {
	tm, ok := c.entries[id]
	return tm, ok
}

// Put applies the replace-on-change rule of spec.md §4.G: if an existing
// entry for incoming.ID matches in column count and column-type vector it
// is retained and returned; otherwise incoming replaces it. incoming.GTID
// is expected to already carry the current GTID (the converter copies it
// in before calling Put, since the cache itself tracks no replication
// position).
func (c *TableMapCache) Put(incoming *TableMap) *TableMap {
	existing, ok := c.entries[incoming.ID]
	if ok && sameSignature(existing.signature(), incoming.signature()) {
		return existing
	}
	c.entries[incoming.ID] = incoming
	return incoming
}

// Delete removes a table id's cached entry, used when a table is dropped.
func (c *TableMapCache) Delete(id uint64) {
	delete(c.entries, id)
}

// Len reports how many tables are currently tracked.
func (c *TableMapCache) Len() int {
	return len(c.entries)
}
