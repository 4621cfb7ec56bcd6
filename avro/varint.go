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

// Package avro implements the Avro object-container codec this core reads
// and writes: zigzag-varint primitives, the header/data-block file layout,
// and a flat schema model that projects records to JSON.
package avro

import (
	"io"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// maxVarintBytes is the point at which decode_long gives up: 10 bytes is
// enough for any 64-bit zigzag value, so an 11th continuation byte can only
// mean a corrupt stream.
const maxVarintBytes = 10

// byteReader is the minimal read surface decode_long and decode_string
// need; *bufio.Reader and *bytes.Reader both satisfy it.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// EncodeLong zigzag-encodes v and emits it 7 bits per byte, low-order
// first, with the continuation bit set on every non-final byte.
func EncodeLong(v int64) []byte {
	u := encodeZigzag(v)
	buf := make([]byte, 0, maxVarintBytes)
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		buf = append(buf, b)
		return buf
	}
}

// DecodeLong reads a zigzag varint from r. Observing zero bytes at the
// first position is treated as clean EOF, not an error; any truncation
// thereafter is cdcerr.IO, and exceeding maxVarintBytes is
// cdcerr.ValueOverflow.
func DecodeLong(r byteReader) (int64, error) {
	var u uint64
	for i := 0; ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i == 0 && err == io.EOF {
				return 0, io.EOF
			}
			return 0, cdcerr.IO.New(err)
		}
		if i == maxVarintBytes {
			return 0, cdcerr.ValueOverflow.New("varint exceeded 10 bytes")
		}
		u |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return decodeZigzag(u), nil
		}
	}
}

func encodeZigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func decodeZigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// EncodeString writes a long-encoded length followed by the raw bytes of
// s. An empty string is valid and encodes as a zero-length varint.
func EncodeString(s string) []byte {
	length := EncodeLong(int64(len(s)))
	out := make([]byte, 0, len(length)+len(s))
	out = append(out, length...)
	out = append(out, s...)
	return out
}

// DecodeString reads a long-encoded length then that many raw bytes.
func DecodeString(r byteReader) (string, error) {
	n, err := DecodeLong(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", cdcerr.Corruption.New("negative string length")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", cdcerr.IO.New(err)
	}
	return string(buf), nil
}

// SkipString reads a length prefix and advances the cursor by that many
// bytes without allocating a copy of the payload.
func SkipString(r byteReader) error {
	n, err := DecodeLong(r)
	if err != nil {
		return err
	}
	if n < 0 {
		return cdcerr.Corruption.New("negative string length")
	}
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(n, io.SeekCurrent); err != nil {
			return cdcerr.IO.New(err)
		}
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}

// DecodeMapStringString reads a map<string,bytes> block sequence: each
// block is a long count followed by that many (key, value) pairs,
// terminated by a zero-count block. Per spec, iteration order of the
// source's blocks is not part of the contract, so this returns a plain
// map rather than preserving insertion order.
func DecodeMapStringString(r byteReader) (map[string]string, error) {
	out := make(map[string]string)
	for {
		count, err := DecodeLong(r)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return out, nil
		}
		if count < 0 {
			return nil, cdcerr.Corruption.New("negative map block count")
		}
		for i := int64(0); i < count; i++ {
			key, err := DecodeString(r)
			if err != nil {
				return nil, err
			}
			val, err := DecodeString(r)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
	}
}

// EncodeMapStringString emits m as a single non-empty block (if non-empty)
// followed by the zero-count terminator block.
func EncodeMapStringString(m map[string]string) []byte {
	var out []byte
	if len(m) > 0 {
		out = append(out, EncodeLong(int64(len(m)))...)
		for k, v := range m {
			out = append(out, EncodeString(k)...)
			out = append(out, EncodeString(v)...)
		}
	}
	out = append(out, EncodeLong(0)...)
	return out
}
