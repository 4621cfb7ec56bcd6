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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTableMapBody(id uint64, database, table string, columnTypes, metadata []byte) []byte {
	body := make([]byte, 6)
	le := make([]byte, 8)
	binary.LittleEndian.PutUint64(le, id)
	copy(body, le[:6])
	body = append(body, 0x00, 0x00) // flags

	body = append(body, byte(len(database)))
	body = append(body, []byte(database)...)
	body = append(body, 0x00)

	body = append(body, byte(len(table)))
	body = append(body, []byte(table)...)
	body = append(body, 0x00)

	body = append(body, byte(len(columnTypes))) // column count, length-encoded (<0xfb)
	body = append(body, columnTypes...)

	body = append(body, byte(len(metadata)))
	body = append(body, metadata...)

	body = append(body, 0x00) // null bitmap, 1 column group fits in 1 byte here
	return body
}

func TestDecodeTableMapEventMatchesS3(t *testing.T) {
	body := buildTableMapBody(17, "d", "t", []byte{byte(TypeLong), byte(TypeVarchar)}, []byte{0x00, 0xff})
	tm, err := DecodeTableMapEvent(body)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), tm.ID)
	assert.Equal(t, "d", tm.Database)
	assert.Equal(t, "t", tm.Table)
	assert.Equal(t, []byte{byte(TypeLong), byte(TypeVarchar)}, tm.ColumnTypes)
	assert.Equal(t, []byte{0x00, 0xff}, tm.ColumnMetadata)
}

func buildQueryEventBody(database, sql string) []byte {
	body := make([]byte, 13)
	body[8] = byte(len(database))
	binary.LittleEndian.PutUint16(body[11:13], 0) // status-vars length
	body = append(body, []byte(database)...)
	body = append(body, 0x00)
	body = append(body, []byte(sql)...)
	return body
}

func TestDecodeQueryEvent(t *testing.T) {
	body := buildQueryEventBody("d", "CREATE TABLE t (a INT)")
	db, sql, err := DecodeQueryEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "d", db)
	assert.Equal(t, "CREATE TABLE t (a INT)", sql)
}

func TestDecodeGTIDEvent(t *testing.T) {
	body := make([]byte, 13)
	binary.LittleEndian.PutUint64(body[0:8], 100)
	binary.LittleEndian.PutUint32(body[8:12], 0)
	gtid, err := DecodeGTIDEvent(1, body)
	require.NoError(t, err)
	assert.Equal(t, "0-1-100", gtid)
}
