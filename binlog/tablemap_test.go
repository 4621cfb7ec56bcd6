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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableMapCachePutNewEntry(t *testing.T) {
	c := NewTableMapCache()
	tm := &TableMap{ID: 1, Database: "d", Table: "t", ColumnTypes: []byte{byte(TypeLong)}, GTID: "0-1-1"}
	got := c.Put(tm)
	assert.Same(t, tm, got)
	stored, ok := c.Lookup(1)
	require.True(t, ok)
	assert.Same(t, tm, stored)
	assert.Equal(t, 1, c.Len())
}

func TestTableMapCacheRetainsOnMatchingSignature(t *testing.T) {
	c := NewTableMapCache()
	first := &TableMap{ID: 1, ColumnTypes: []byte{byte(TypeLong), byte(TypeVarchar)}, GTID: "0-1-1"}
	c.Put(first)

	second := &TableMap{ID: 1, ColumnTypes: []byte{byte(TypeLong), byte(TypeVarchar)}, GTID: "0-1-2"}
	got := c.Put(second)
	assert.Same(t, first, got, "matching column count/types retains the existing entry")
}

func TestTableMapCacheReplacesOnSignatureChange(t *testing.T) {
	c := NewTableMapCache()
	first := &TableMap{ID: 1, ColumnTypes: []byte{byte(TypeLong)}, GTID: "0-1-1"}
	c.Put(first)

	second := &TableMap{ID: 1, ColumnTypes: []byte{byte(TypeLong), byte(TypeVarchar)}, GTID: "0-1-2"}
	got := c.Put(second)
	assert.Same(t, second, got, "column count change replaces the entry")
	stored, _ := c.Lookup(1)
	assert.Same(t, second, stored)
}

func TestTableMapCacheDelete(t *testing.T) {
	c := NewTableMapCache()
	c.Put(&TableMap{ID: 1, ColumnTypes: []byte{byte(TypeLong)}})
	c.Delete(1)
	_, ok := c.Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
