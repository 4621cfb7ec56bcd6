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

// Package binlog decodes the MySQL/MariaDB row-based replication wire
// format: length-encoded integers and strings, table-map events, and the
// per-column unpacking rules for row images.
package binlog

import (
	"encoding/binary"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// LEIntConsume reads a MySQL length-encoded integer starting at buf[0]
// and returns its value along with the number of bytes consumed
// (including the leading flag byte), per spec.md §4.D.
func LEIntConsume(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, cdcerr.IO.New("empty buffer reading length-encoded integer")
	}
	n := buf[0]
	switch {
	case n < 0xfb:
		return uint64(n), 1, nil
	case n == 0xfc:
		if len(buf) < 3 {
			return 0, 0, cdcerr.IO.New("truncated 2-byte length-encoded integer")
		}
		return uint64(binary.LittleEndian.Uint16(buf[1:3])), 3, nil
	case n == 0xfd:
		if len(buf) < 4 {
			return 0, 0, cdcerr.IO.New("truncated 3-byte length-encoded integer")
		}
		v := uint64(buf[1]) | uint64(buf[2])<<8 | uint64(buf[3])<<16
		return v, 4, nil
	case n == 0xfe:
		if len(buf) < 9 {
			return 0, 0, cdcerr.IO.New("truncated 8-byte length-encoded integer")
		}
		return binary.LittleEndian.Uint64(buf[1:9]), 9, nil
	default:
		// 0xfb (NULL marker) and 0xff (error marker) are not expected in
		// this context per spec.md §4.D.
		return 0, 0, cdcerr.Corruption.New("unexpected length-encoded integer marker")
	}
}

// LEStringConsume reads a length-encoded string (length-encoded integer
// length, then that many raw bytes) and returns it along with the total
// number of bytes consumed.
func LEStringConsume(buf []byte) (string, int, error) {
	n, width, err := LEIntConsume(buf)
	if err != nil {
		return "", 0, err
	}
	end := width + int(n)
	if end > len(buf) {
		return "", 0, cdcerr.IO.New("truncated length-encoded string")
	}
	return string(buf[width:end]), end, nil
}

// ReverseBytesToUint reads n big-endian bytes from buf starting at
// offset and returns them as a uint64, used for the reverse-byte
// unpackers (TIME, DATE's big-endian sibling forms, TIMESTAMP,
// DATETIME2) that spec.md §4.D calls out.
func ReverseBytesToUint(buf []byte, offset, n int) (uint64, error) {
	if offset+n > len(buf) {
		return 0, cdcerr.IO.New("truncated big-endian field")
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = (v << 8) | uint64(buf[offset+i])
	}
	return v, nil
}

// Read3BE reads a 3-byte big-endian field (TIME).
func Read3BE(buf []byte, offset int) (uint32, error) {
	v, err := ReverseBytesToUint(buf, offset, 3)
	return uint32(v), err
}

// Read4BE reads a 4-byte big-endian field (TIMESTAMP).
func Read4BE(buf []byte, offset int) (uint32, error) {
	v, err := ReverseBytesToUint(buf, offset, 4)
	return uint32(v), err
}

// Read5BE reads a 5-byte big-endian field (DATETIME2).
func Read5BE(buf []byte, offset int) (uint64, error) {
	return ReverseBytesToUint(buf, offset, 5)
}

// NullBitmapSize returns the number of bytes a null bitmap covering
// columns columns needs: ceil(columns/8).
func NullBitmapSize(columns int) int {
	return (columns + 7) / 8
}

// BitmapIsSet reports whether bit i is set in a little-endian-ordered
// bitmap (bit 0 of byte 0 is column 0), the layout used by both the
// null bitmap and the columns-present/columns-updated bitmaps.
func BitmapIsSet(bitmap []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bitmap) {
		return false
	}
	return bitmap[byteIdx]&(1<<uint(i%8)) != 0
}

// CountBitmapSet returns how many bits are set among the first n bits of
// bitmap, used to size row images against the columns-present bitmap.
func CountBitmapSet(bitmap []byte, n int) int {
	count := 0
	for i := 0; i < n; i++ {
		if BitmapIsSet(bitmap, i) {
			count++
		}
	}
	return count
}
