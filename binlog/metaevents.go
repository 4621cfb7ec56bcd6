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
	"fmt"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// DecodeTableMapEvent parses a TABLE_MAP_EVENT body into a TableMap. The
// GTID field is left empty; the converter loop stamps it in before the
// entry reaches the table-map cache.
func DecodeTableMapEvent(body []byte) (*TableMap, error) {
	if len(body) < 8 {
		return nil, cdcerr.IO.New("truncated table map event")
	}
	id, err := ReverseBytesToUint(reverse6(body[0:6]), 0, 6)
	if err != nil {
		return nil, err
	}
	flags := binary.LittleEndian.Uint16(body[6:8])
	off := 8

	if off >= len(body) {
		return nil, cdcerr.IO.New("truncated table map database name")
	}
	dbLen := int(body[off])
	off++
	if off+dbLen+1 > len(body) {
		return nil, cdcerr.IO.New("truncated table map database name")
	}
	database := string(body[off : off+dbLen])
	off += dbLen + 1 // skip trailing filler null byte

	if off >= len(body) {
		return nil, cdcerr.IO.New("truncated table map table name")
	}
	tableLen := int(body[off])
	off++
	if off+tableLen+1 > len(body) {
		return nil, cdcerr.IO.New("truncated table map table name")
	}
	table := string(body[off : off+tableLen])
	off += tableLen + 1

	columnCount, width, err := LEIntConsume(body[off:])
	if err != nil {
		return nil, err
	}
	off += width
	if off+int(columnCount) > len(body) {
		return nil, cdcerr.IO.New("truncated table map column types")
	}
	columnTypes := append([]byte{}, body[off:off+int(columnCount)]...)
	off += int(columnCount)

	metaLen, width, err := LEIntConsume(body[off:])
	if err != nil {
		return nil, err
	}
	off += width
	if off+int(metaLen) > len(body) {
		return nil, cdcerr.IO.New("truncated table map column metadata")
	}
	metadata := append([]byte{}, body[off:off+int(metaLen)]...)
	off += int(metaLen)

	nullBitmapSize := NullBitmapSize(int(columnCount))
	var nullBitmap []byte
	if off+nullBitmapSize <= len(body) {
		nullBitmap = append([]byte{}, body[off:off+nullBitmapSize]...)
	}

	return &TableMap{
		ID:             id,
		Flags:          flags,
		Database:       database,
		Table:          table,
		ColumnTypes:    columnTypes,
		ColumnMetadata: metadata,
		NullBitmap:     nullBitmap,
	}, nil
}

// DecodeQueryEvent parses a QUERY_EVENT body into the database it ran
// against and the SQL statement text, per spec.md §4.D.
func DecodeQueryEvent(body []byte) (database, sql string, err error) {
	if len(body) < 13 {
		return "", "", cdcerr.IO.New("truncated query event")
	}
	schemaLen := int(body[8])
	statusVarsLen := int(binary.LittleEndian.Uint16(body[11:13]))
	off := 13 + statusVarsLen
	if off+schemaLen+1 > len(body) {
		return "", "", cdcerr.IO.New("truncated query event schema name")
	}
	database = string(body[off : off+schemaLen])
	off += schemaLen + 1 // skip trailing filler null byte
	sql = string(body[off:])
	return database, sql, nil
}

// DecodeGTIDEvent parses a MariaDB GTID_EVENT body into the
// "domain-server_id-sequence" string gtidindex.ParseGTID expects,
// combining the header's server id with the event body's sequence number
// and domain id.
func DecodeGTIDEvent(serverID uint32, body []byte) (string, error) {
	if len(body) < 13 {
		return "", cdcerr.IO.New("truncated GTID event")
	}
	sequence := binary.LittleEndian.Uint64(body[0:8])
	domain := binary.LittleEndian.Uint32(body[8:12])
	return fmt.Sprintf("%d-%d-%d", domain, serverID, sequence), nil
}
