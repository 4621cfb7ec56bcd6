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
	"math"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// datetime2Offset is subtracted from the raw 5-byte big-endian integer
// that carries a DATETIME2/TIMESTAMP2 value before it is split into its
// date and time-of-day components; MariaDB biases the packed value so
// it sorts correctly as an unsigned integer.
const datetime2Offset = 0x8000000000

// DecodeColumn reads one column value out of row starting at offset,
// dispatching on typ per spec.md §4.E. metadata holds the bytes that
// table-map carried for this column (its width is MetadataWidth(typ)
// bytes, already sliced by the caller). It returns the decoded value,
// the number of row bytes consumed, and an error.
func DecodeColumn(typ ColumnType, metadata []byte, row []byte, offset int) (interface{}, int, error) {
	switch typ {
	case TypeTiny:
		if offset+1 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated TINY column")
		}
		return int64(int8(row[offset])), 1, nil

	case TypeShort:
		if offset+2 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated SHORT column")
		}
		return int64(int16(binary.LittleEndian.Uint16(row[offset : offset+2]))), 2, nil

	case TypeInt24:
		if offset+3 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated INT24 column")
		}
		v := uint32(row[offset]) | uint32(row[offset+1])<<8 | uint32(row[offset+2])<<16
		if v&0x800000 != 0 {
			v |= 0xff000000 // sign-extend 24 -> 32 bits
		}
		return int64(int32(v)), 3, nil

	case TypeLong:
		if offset+4 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated LONG column")
		}
		return int64(int32(binary.LittleEndian.Uint32(row[offset : offset+4]))), 4, nil

	case TypeLongLong:
		if offset+8 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated LONGLONG column")
		}
		return int64(binary.LittleEndian.Uint64(row[offset : offset+8])), 8, nil

	case TypeFloat:
		if offset+4 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated FLOAT column")
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(row[offset : offset+4])), 4, nil

	case TypeDouble:
		if offset+8 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated DOUBLE column")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(row[offset : offset+8])), 8, nil

	case TypeYear:
		if offset+1 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated YEAR column")
		}
		// Raw byte; the 1900 offset is applied by the converter package,
		// which is the consumer that knows this column is a YEAR.
		return int64(row[offset]), 1, nil

	case TypeTime:
		v, err := Read3BE(row, offset)
		if err != nil {
			return nil, 0, cdcerr.IO.New("truncated TIME column")
		}
		h := v / 10000
		m := (v / 100) % 100
		s := v % 100
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s), 3, nil

	case TypeDate, TypeNewDate:
		if offset+3 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated DATE column")
		}
		v := uint32(row[offset]) | uint32(row[offset+1])<<8 | uint32(row[offset+2])<<16
		day := v & 0x1f
		mon := (v >> 5) & 0xf
		year := v >> 9
		return fmt.Sprintf("%04d-%02d-%02d", year, mon, day), 3, nil

	case TypeDatetime:
		if offset+8 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated DATETIME column")
		}
		v := binary.LittleEndian.Uint64(row[offset : offset+8])
		datePart := v / 1000000
		timePart := v % 1000000
		year := datePart / 10000
		mon := (datePart / 100) % 100
		day := datePart % 100
		h := timePart / 10000
		m := (timePart / 100) % 100
		s := timePart % 100
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, mon, day, h, m, s), 8, nil

	case TypeDatetime2:
		raw, err := Read5BE(row, offset)
		if err != nil {
			return nil, 0, cdcerr.IO.New("truncated DATETIME2 column")
		}
		raw -= datetime2Offset
		ymd := raw >> 17
		hms := raw & 0x1ffff
		day := ymd & 0x1f
		ym := ymd >> 5
		mon := ym % 13
		year := ym / 13
		hour := hms >> 12
		minute := (hms >> 6) & 0x3f
		second := hms & 0x3f
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, mon, day, hour, minute, second), 5, nil

	case TypeTimestamp:
		v, err := Read4BE(row, offset)
		if err != nil {
			return nil, 0, cdcerr.IO.New("truncated TIMESTAMP column")
		}
		return int64(v), 4, nil

	case TypeTimestamp2:
		v, err := Read4BE(row, offset)
		if err != nil {
			return nil, 0, cdcerr.IO.New("truncated TIMESTAMP2 column")
		}
		consumed := 4
		// Fractional-second bytes, if column_metadata declares any
		// ((metadata[0]+1)/2 bytes: 1 for precision 1-2, 2 for 3-4, 3 for
		// 5-6), are consumed but dropped: the Avro schema has no
		// sub-second field per spec.md §4.H.
		if len(metadata) > 0 && metadata[0] > 0 {
			fracBytes := (int(metadata[0]) + 1) / 2
			consumed += fracBytes
		}
		return int64(v), consumed, nil

	case TypeVarchar, TypeVarString:
		return decodeLengthPrefixedString(metadata, row, offset)

	case TypeString, TypeEnum, TypeSet:
		return decodeFixedOrPackedString(typ, metadata, row, offset)

	case TypeDecimal, TypeNewDecimal, TypeGeometry:
		return decodeLengthPrefixedString(metadata, row, offset)

	case TypeBit:
		return decodeBit(metadata, row, offset)

	case TypeTinyBlob, TypeMediumBlob, TypeLongBlob, TypeBlob:
		return decodeBlob(metadata, row, offset)

	case TypeJSON:
		return decodeBlob(metadata, row, offset)

	case TypeNull:
		return nil, 0, nil

	default:
		return nil, 0, cdcerr.Schema.New(fmt.Sprintf("unsupported column type %d", typ))
	}
}

// decodeLengthPrefixedString reads VARCHAR/VARSTRING/DECIMAL/NEWDECIMAL/
// GEOMETRY values, which carry their own length prefix in the row image
// (1 byte if the declared max length fits in a byte, else 2, mirroring
// the column_metadata width convention).
func decodeLengthPrefixedString(metadata []byte, row []byte, offset int) (interface{}, int, error) {
	lenBytes := 1
	if len(metadata) == 2 && binary.LittleEndian.Uint16(metadata) > 255 {
		lenBytes = 2
	}
	var n int
	switch lenBytes {
	case 1:
		if offset+1 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated length-prefixed column")
		}
		n = int(row[offset])
	case 2:
		if offset+2 > len(row) {
			return nil, 0, cdcerr.IO.New("truncated length-prefixed column")
		}
		n = int(binary.LittleEndian.Uint16(row[offset : offset+2]))
	}
	start := offset + lenBytes
	if start+n > len(row) {
		return nil, 0, cdcerr.IO.New("truncated length-prefixed column body")
	}
	return string(row[start : start+n]), lenBytes + n, nil
}

// decodeFixedOrPackedString handles STRING's two wire shapes: a real
// fixed CHAR field (1-byte length prefix) versus ENUM/SET's packed
// little-endian integer index. A STRING column whose first metadata byte
// (its real type) is ENUM or SET is decoded as that index, with the
// second metadata byte giving its width; a column typed ENUM/SET
// directly takes the width from metadata[0].
func decodeFixedOrPackedString(typ ColumnType, metadata []byte, row []byte, offset int) (interface{}, int, error) {
	if typ == TypeString && len(metadata) == 2 &&
		(ColumnType(metadata[0]) == TypeEnum || ColumnType(metadata[0]) == TypeSet) {
		typ = ColumnType(metadata[0])
		metadata = metadata[1:]
	}
	if typ == TypeEnum || typ == TypeSet {
		width := 1
		if len(metadata) > 0 {
			width = int(metadata[0])
			if width == 0 {
				width = 1
			}
		}
		if offset+width > len(row) {
			return nil, 0, cdcerr.IO.New("truncated ENUM/SET column")
		}
		var v uint64
		for i := 0; i < width; i++ {
			v |= uint64(row[offset+i]) << uint(8*i)
		}
		return int64(v), width, nil
	}
	return decodeLengthPrefixedString(nil, row, offset)
}

// decodeBit decodes a BIT(M) column. Its row-image width is
// ceil(M/8) bytes and the value is packed big-endian across those
// bytes (unlike every other multi-byte integer column, which is
// little-endian), matching MariaDB's Field_bit on-disk layout.
func decodeBit(metadata []byte, row []byte, offset int) (interface{}, int, error) {
	bits := 0
	if len(metadata) == 2 {
		bits = int(metadata[0]) + int(metadata[1])*8
	}
	if bits == 0 {
		bits = 8
	}
	width := (bits + 7) / 8
	if offset+width > len(row) {
		return nil, 0, cdcerr.IO.New("truncated BIT column")
	}
	var v uint64
	for i := 0; i < width; i++ {
		v = (v << 8) | uint64(row[offset+i])
	}
	return int64(v), width, nil
}

// decodeBlob decodes TINYBLOB/BLOB/MEDIUMBLOB/LONGBLOB/JSON, whose row
// image carries an explicit length prefix whose own width (1-4 bytes,
// little-endian) is given by column_metadata[0].
func decodeBlob(metadata []byte, row []byte, offset int) (interface{}, int, error) {
	if len(metadata) == 0 {
		return nil, 0, cdcerr.Schema.New("BLOB column missing metadata width")
	}
	lenBytes := int(metadata[0])
	if lenBytes < 1 || lenBytes > 4 {
		return nil, 0, cdcerr.Corruption.New("invalid BLOB length-prefix width")
	}
	if offset+lenBytes > len(row) {
		return nil, 0, cdcerr.IO.New("truncated BLOB length prefix")
	}
	var n uint32
	for i := 0; i < lenBytes; i++ {
		n |= uint32(row[offset+i]) << uint(8*i)
	}
	start := offset + lenBytes
	end := start + int(n)
	if end > len(row) {
		return nil, 0, cdcerr.IO.New("truncated BLOB body")
	}
	out := make([]byte, n)
	copy(out, row[start:end])
	return out, lenBytes + int(n), nil
}
