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
	"encoding/binary"
	"io"
	"math"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// EncodeFloat writes v as 4 little-endian bytes.
func EncodeFloat(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeFloat reads 4 little-endian bytes as an IEEE-754 float32.
func DecodeFloat(r byteReader) (float32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, cdcerr.IO.New(err)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

// EncodeDouble writes v as 8 little-endian bytes.
func EncodeDouble(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// DecodeDouble reads 8 little-endian bytes as an IEEE-754 float64.
func DecodeDouble(r byteReader) (float64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, cdcerr.IO.New(err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// EncodeBool writes a single byte: zero for false, one for true.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool reads a single byte and treats any non-zero value as true.
func DecodeBool(r byteReader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, cdcerr.IO.New(err)
	}
	return b != 0, nil
}

// EncodeBytes writes a long-encoded length followed by the raw bytes of b.
func EncodeBytes(b []byte) []byte {
	length := EncodeLong(int64(len(b)))
	out := make([]byte, 0, len(length)+len(b))
	out = append(out, length...)
	out = append(out, b...)
	return out
}

// DecodeBytes reads a long-encoded length then that many raw bytes.
func DecodeBytes(r byteReader) ([]byte, error) {
	n, err := DecodeLong(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, cdcerr.Corruption.New("negative bytes length")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, cdcerr.IO.New(err)
	}
	return buf, nil
}
