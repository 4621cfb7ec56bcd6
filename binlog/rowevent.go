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

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// dummyTableID is the sentinel table id MariaDB uses on the final
// END_STATEMENT row event of a statement; spec.md §4.I calls out that it
// and its END_STATEMENT flag must be skipped rather than decoded.
const dummyTableID = 0x00ffffff

const endStatementFlag = 0x0001

// RowImage is the ordered, per-column decode of one row image (before or
// after), in table-map column order. A nil entry at index i means column
// i was NULL in this image.
type RowImage struct {
	Values []interface{}
}

// RowEvent is the parsed body of a WRITE/UPDATE/DELETE_ROWS event.
type RowEvent struct {
	TableID uint64
	Flags   uint16
	// Before holds the pre-image rows (DELETE, or the "before" half of
	// an UPDATE). After holds the post-image rows (INSERT, or the
	// "after" half of an UPDATE).
	Before []RowImage
	After  []RowImage
	// Skip is set for the dummy END_STATEMENT row event, which carries
	// no real row data and should be ignored by the converter loop.
	Skip bool
}

// DecodeRowEvent parses a WRITE/UPDATE/DELETE_ROWS_v1/v2 event body
// against tm, per spec.md §4.I. isUpdate selects whether each row image
// is followed by a second (after) image; v2 selects whether an
// extra-data block follows the table id/flags.
func DecodeRowEvent(tm *TableMap, body []byte, v2 bool, isUpdate, isDelete bool) (*RowEvent, error) {
	if len(body) < 8 {
		return nil, cdcerr.IO.New("truncated row event header")
	}
	tableID, err := ReverseBytesToUint(reverse6(body[0:6]), 0, 6)
	if err != nil {
		return nil, err
	}
	flags := binary.LittleEndian.Uint16(body[6:8])
	off := 8

	if tableID == dummyTableID && flags&endStatementFlag != 0 {
		return &RowEvent{TableID: tableID, Flags: flags, Skip: true}, nil
	}

	if v2 {
		if len(body) < off+2 {
			return nil, cdcerr.IO.New("truncated row event v2 extra-data length")
		}
		extraLen := int(binary.LittleEndian.Uint16(body[off : off+2]))
		if extraLen < 2 || off+extraLen > len(body) {
			return nil, cdcerr.Corruption.New("invalid row event v2 extra-data length")
		}
		off += extraLen
	}

	columnCount, width, err := LEIntConsume(body[off:])
	if err != nil {
		return nil, err
	}
	off += width

	bitmapSize := NullBitmapSize(int(columnCount))
	if len(body) < off+bitmapSize {
		return nil, cdcerr.IO.New("truncated columns-present bitmap")
	}
	present1 := body[off : off+bitmapSize]
	off += bitmapSize

	var present2 []byte
	if isUpdate {
		if len(body) < off+bitmapSize {
			return nil, cdcerr.IO.New("truncated second columns-present bitmap")
		}
		present2 = body[off : off+bitmapSize]
		off += bitmapSize
	}

	ev := &RowEvent{TableID: tableID, Flags: flags}
	for off < len(body) {
		img, consumed, err := decodeRowImage(tm, present1, body, off)
		if err != nil {
			return nil, err
		}
		off += consumed
		if isUpdate {
			ev.Before = append(ev.Before, img)
			after, consumed2, err := decodeRowImage(tm, present2, body, off)
			if err != nil {
				return nil, err
			}
			off += consumed2
			ev.After = append(ev.After, after)
		} else if isDelete {
			ev.Before = append(ev.Before, img)
		} else {
			ev.After = append(ev.After, img)
		}
	}
	return ev, nil
}

// decodeRowImage reads one row image: a null bitmap sized to the number
// of present columns, then a value for every present, non-null column in
// table-map order.
func decodeRowImage(tm *TableMap, present []byte, body []byte, offset int) (RowImage, int, error) {
	presentCount := CountBitmapSet(present, len(tm.ColumnTypes))
	nullSize := NullBitmapSize(presentCount)
	if offset+nullSize > len(body) {
		return RowImage{}, 0, cdcerr.IO.New("truncated row null bitmap")
	}
	nullBitmap := body[offset : offset+nullSize]
	cursor := offset + nullSize

	values := make([]interface{}, len(tm.ColumnTypes))
	presentIdx := 0
	for col := 0; col < len(tm.ColumnTypes); col++ {
		if !BitmapIsSet(present, col) {
			continue
		}
		if BitmapIsSet(nullBitmap, presentIdx) {
			values[col] = nil
			presentIdx++
			continue
		}
		metaOffset := metadataOffset(tm.ColumnMetadata, tm.ColumnTypes, col)
		width := MetadataWidth(ColumnType(tm.ColumnTypes[col]))
		var meta []byte
		if width > 0 && metaOffset+width <= len(tm.ColumnMetadata) {
			meta = tm.ColumnMetadata[metaOffset : metaOffset+width]
		}
		v, n, err := DecodeColumn(ColumnType(tm.ColumnTypes[col]), meta, body, cursor)
		if err != nil {
			return RowImage{}, 0, err
		}
		values[col] = v
		cursor += n
		presentIdx++
	}
	return RowImage{Values: values}, cursor - offset, nil
}

// metadataOffset returns where column i's metadata bytes begin within
// the concatenated column_metadata vector, by summing the widths of
// every preceding column.
func metadataOffset(metadata []byte, columnTypes []byte, i int) int {
	off := 0
	for j := 0; j < i; j++ {
		off += MetadataWidth(ColumnType(columnTypes[j]))
	}
	return off
}

// reverse6 returns a reversed copy of a 6-byte little-endian table id so
// it can be read with the big-endian ReverseBytesToUint helper.
func reverse6(buf []byte) []byte {
	out := make([]byte, 6)
	for i := 0; i < 6; i++ {
		out[i] = buf[5-i]
	}
	return out
}
