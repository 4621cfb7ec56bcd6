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

package avro

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func xSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := ParseSchema([]byte(`{
		"type": "record",
		"name": "R",
		"fields": [{"name": "x", "type": "long"}]
	}`))
	require.NoError(t, err)
	return s
}

// TestContainerRoundTrip implements spec.md §8 S2: two single-record
// blocks {x:1} then {x:-1}, read back in order, ending at clean EOF.
func TestContainerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s2.avro")
	w, err := Create(path, xSchema(t))
	require.NoError(t, err)

	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": int64(1)}))
	require.NoError(t, w.FinalizeBlock())
	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": int64(-1)}))
	require.NoError(t, w.FinalizeBlock())
	require.NoError(t, w.Close())

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.NextBlock())
	rec, err := c.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, int64(1), rec["x"])
	_, err = c.ReadRecord()
	require.Equal(t, io.EOF, err)

	require.NoError(t, c.NextBlock())
	rec, err = c.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, int64(-1), rec["x"])
	_, err = c.ReadRecord()
	require.Equal(t, io.EOF, err)

	require.Equal(t, io.EOF, c.NextBlock())
}

// TestSeekRecord implements property 4: seeking N records then reading
// returns the record at position N.
func TestSeekRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seek.avro")
	w, err := Create(path, xSchema(t))
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": i}))
	}
	require.NoError(t, w.Close())

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.NextBlock())
	require.NoError(t, c.SeekRecord(3))
	rec, err := c.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, int64(3), rec["x"])
}

// TestSeekRecordAcrossBlocks exercises property 4 when the target lies in
// a later block than the cursor's current one.
func TestSeekRecordAcrossBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seek-blocks.avro")
	w, err := Create(path, xSchema(t))
	require.NoError(t, err)
	for block := 0; block < 3; block++ {
		for i := 0; i < 2; i++ {
			v := int64(block*2 + i)
			require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": v}))
		}
		require.NoError(t, w.FinalizeBlock())
	}
	require.NoError(t, w.Close())

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.NextBlock())
	require.NoError(t, c.SeekRecord(4))
	rec, err := c.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, int64(4), rec["x"])
}

// TestCrashRecoveryTruncatesToLastSync implements property 5: truncating
// mid-append and reopening succeeds, ending on a sync marker.
func TestCrashRecoveryTruncatesToLastSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.avro")
	w, err := Create(path, xSchema(t))
	require.NoError(t, err)
	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": int64(42)}))
	require.NoError(t, w.FinalizeBlock())
	goodSize, err := fileSize(path)
	require.NoError(t, err)

	// Simulate a crash mid-append of a second block: partial header + no sync.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x04, 0x06, 0x01, 0x02, 0x03}) // truncated payload, no sync
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Recover(path))
	recoveredSize, err := fileSize(path)
	require.NoError(t, err)
	require.Equal(t, goodSize, recoveredSize)

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.NextBlock())
	rec, err := c.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, int64(42), rec["x"])
	require.Equal(t, io.EOF, c.NextBlock())
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func TestBlockSyncMismatchIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badsync.avro")
	w, err := Create(path, xSchema(t))
	require.NoError(t, err)
	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": int64(1)}))
	require.NoError(t, w.FinalizeBlock())
	firstBlockEnd, err := fileSize(path)
	require.NoError(t, err)
	require.NoError(t, w.AppendRecordToBuffer(map[string]interface{}{"x": int64(2)}))
	require.NoError(t, w.FinalizeBlock())
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	// Corrupt the last byte of the first block's trailing sync marker.
	_, err = f.WriteAt([]byte{0xff}, firstBlockEnd-1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.NextBlock())
	_, err = c.ReadRecord()
	require.NoError(t, err)
	err = c.NextBlock()
	require.Error(t, err)
}
