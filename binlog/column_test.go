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

func TestDecodeColumnFixedIntegers(t *testing.T) {
	v, n, err := DecodeColumn(TypeTiny, nil, []byte{0xff}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
	assert.Equal(t, 1, n)

	v, n, err = DecodeColumn(TypeShort, nil, []byte{0x00, 0x80}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-32768), v)
	assert.Equal(t, 2, n)

	v, n, err = DecodeColumn(TypeInt24, nil, []byte{0xff, 0xff, 0xff}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
	assert.Equal(t, 3, n)

	v, n, err = DecodeColumn(TypeLong, nil, []byte{0x01, 0x00, 0x00, 0x00}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, 4, n)

	v, n, err = DecodeColumn(TypeLongLong, nil, []byte{0x02, 0, 0, 0, 0, 0, 0, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 8, n)
}

func TestDecodeColumnFloatDouble(t *testing.T) {
	v, _, err := DecodeColumn(TypeFloat, nil, []byte{0x00, 0x00, 0x80, 0x3f}, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), v)

	v, _, err = DecodeColumn(TypeDouble, nil, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, 0)
	require.NoError(t, err)
	assert.Equal(t, float64(1.0), v)
}

func TestDecodeColumnTime(t *testing.T) {
	// 03:04:05 packed as BE24 "030405" = 30405.
	v, n, err := DecodeColumn(TypeTime, nil, []byte{0x00, 0x76, 0xc5}, 0)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05", v)
	assert.Equal(t, 3, n)
}

func TestDecodeColumnDate(t *testing.T) {
	// 2020-01-02: year=2020, mon=1, day=2 -> v = (2020<<9)|(1<<5)|2.
	v := uint32(2020)<<9 | uint32(1)<<5 | uint32(2)
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16)}
	got, n, err := DecodeColumn(TypeDate, nil, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02", got)
	assert.Equal(t, 3, n)
}

// encodeDatetime2 builds the 5-byte big-endian wire form for a date and
// time using the same bit layout DecodeColumn's DATETIME2 case expects,
// letting the test round-trip instead of depending on a hand-derived
// byte literal.
func encodeDatetime2(year, mon, day, hour, minute, second uint64) []byte {
	ym := year*13 + mon
	ymd := (ym << 5) | day
	hms := (hour << 12) | (minute << 6) | second
	raw := (ymd << 17) | hms
	raw += datetime2Offset
	buf := make([]byte, 5)
	for i := 4; i >= 0; i-- {
		buf[i] = byte(raw)
		raw >>= 8
	}
	return buf
}

func TestDecodeColumnDatetime2RoundTrip(t *testing.T) {
	buf := encodeDatetime2(2020, 1, 2, 3, 4, 0)
	got, n, err := DecodeColumn(TypeDatetime2, nil, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02 03:04:00", got)
	assert.Equal(t, 5, n)
}

func TestDecodeColumnTimestamp(t *testing.T) {
	v, n, err := DecodeColumn(TypeTimestamp, nil, []byte{0x65, 0x00, 0x00, 0x00}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0x65000000), v)
	assert.Equal(t, 4, n)
}

func TestDecodeColumnVarchar(t *testing.T) {
	metadata := []byte{0xff, 0x00} // max length 255 -> 1-byte prefix
	buf := append([]byte{5}, []byte("hello")...)
	v, n, err := DecodeColumn(TypeVarchar, metadata, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	assert.Equal(t, 6, n)
}

func TestDecodeColumnVarcharWideLength(t *testing.T) {
	metadata := []byte{0x00, 0x01} // max length 256 -> 2-byte prefix
	buf := append([]byte{5, 0}, []byte("hello")...)
	v, n, err := DecodeColumn(TypeVarchar, metadata, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	assert.Equal(t, 7, n)
}

func TestDecodeColumnBlob(t *testing.T) {
	metadata := []byte{2} // 2-byte length prefix (MEDIUMBLOB-ish)
	buf := append([]byte{3, 0}, []byte{0x01, 0x02, 0x03}...)
	v, n, err := DecodeColumn(TypeBlob, metadata, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, v)
	assert.Equal(t, 5, n)
}

func TestDecodeColumnBit(t *testing.T) {
	metadata := []byte{2, 0} // BIT(2), single byte storage
	v, n, err := DecodeColumn(TypeBit, metadata, []byte{0x03}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, 1, n)
}

func TestDecodeColumnEnum(t *testing.T) {
	metadata := []byte{1, 0} // 1-byte index
	v, n, err := DecodeColumn(TypeEnum, metadata, []byte{0x02}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 1, n)
}

func TestMetadataWidthTable(t *testing.T) {
	assert.Equal(t, 2, MetadataWidth(TypeVarchar))
	assert.Equal(t, 2, MetadataWidth(TypeBit))
	assert.Equal(t, 1, MetadataWidth(TypeLong))
	assert.Equal(t, 1, MetadataWidth(TypeBlob))
	assert.Equal(t, 0, MetadataWidth(TypeTiny))
	assert.Equal(t, 0, MetadataWidth(TypeDatetime2))
}

func TestAvroTypeForColumn(t *testing.T) {
	assert.Equal(t, "int", AvroTypeForColumn(TypeLong))
	assert.Equal(t, "long", AvroTypeForColumn(TypeLongLong))
	assert.Equal(t, "float", AvroTypeForColumn(TypeFloat))
	assert.Equal(t, "double", AvroTypeForColumn(TypeDouble))
	assert.Equal(t, "bytes", AvroTypeForColumn(TypeBlob))
	assert.Equal(t, "string", AvroTypeForColumn(TypeVarchar))
	assert.Equal(t, "null", AvroTypeForColumn(TypeNull))
	assert.Equal(t, "int", AvroTypeForColumn(TypeDecimal))
	assert.Equal(t, "string", AvroTypeForColumn(TypeNewDecimal))
}
