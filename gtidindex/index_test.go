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

package gtidindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadb-corporation/avrorouter/avro"
)

func gtidSchema(t *testing.T) *avro.Schema {
	t.Helper()
	s, err := avro.ParseSchema([]byte(`{
		"type": "record", "name": "ChangeRecord",
		"fields": [{"name": "GTID", "type": "string"}, {"name": "c0", "type": "long"}]
	}`))
	require.NoError(t, err)
	return s
}

func TestParseGTID(t *testing.T) {
	k, err := ParseGTID("0-1-100")
	require.NoError(t, err)
	assert.Equal(t, Key{Domain: 0, ServerID: 1, Sequence: 100}, k)
	assert.Equal(t, "0-1-100", k.String())

	_, err = ParseGTID("x-1-1")
	assert.Error(t, err)
	_, err = ParseGTID("0-1")
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "gtid.db"))
	require.NoError(t, err)
	defer idx.Close()

	key := Key{Domain: 0, ServerID: 1, Sequence: 100}
	require.NoError(t, idx.Put(key, Position{File: "a.avro", Offset: 42}))

	pos, found, err := idx.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Position{File: "a.avro", Offset: 42}, pos)
}

func TestPutIsIdempotentReplace(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "gtid.db"))
	require.NoError(t, err)
	defer idx.Close()

	key := Key{Domain: 0, ServerID: 1, Sequence: 1}
	require.NoError(t, idx.Put(key, Position{File: "a.avro", Offset: 10}))
	require.NoError(t, idx.Put(key, Position{File: "a.avro", Offset: 99}))

	pos, found, err := idx.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(99), pos.Offset)
}

func TestIndexFileAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.avro")
	w, err := avro.Create(path, gtidSchema(t))
	require.NoError(t, err)
	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"GTID": "0-1-1", "c0": int64(1)}))
	require.NoError(t, w.FinalizeBlock())
	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"GTID": "0-1-2", "c0": int64(2)}))
	require.NoError(t, w.FinalizeBlock())
	require.NoError(t, w.Close())

	idx, err := Open(filepath.Join(t.TempDir(), "gtid.db"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.IndexFile(path))

	pos1, found, err := idx.Get(Key{Domain: 0, ServerID: 1, Sequence: 1})
	require.NoError(t, err)
	require.True(t, found)
	pos2, found, err := idx.Get(Key{Domain: 0, ServerID: 1, Sequence: 2})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, path, pos1.File)
	assert.Equal(t, path, pos2.File)
	assert.Less(t, pos1.Offset, pos2.Offset)

	resume, err := idx.resumeOffset(path)
	require.NoError(t, err)
	assert.Equal(t, pos2.Offset, resume)

	// Re-indexing after resuming is a no-op: already-seen blocks are
	// skipped, so the stored positions are unchanged.
	require.NoError(t, idx.IndexFile(path))
	pos2Again, _, err := idx.Get(Key{Domain: 0, ServerID: 1, Sequence: 2})
	require.NoError(t, err)
	assert.Equal(t, pos2, pos2Again)
}
