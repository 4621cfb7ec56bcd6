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
	"bufio"
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLongBytes(t *testing.T, b []byte) int64 {
	t.Helper()
	v, err := DecodeLong(bufio.NewReader(bytes.NewReader(b)))
	require.NoError(t, err)
	return v
}

func TestEncodeLongScenarios(t *testing.T) {
	// S1 from spec.md §8.
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x01}},
		{1, []byte{0x02}},
		{2147483647, []byte{0xfe, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, EncodeLong(c.v), "encode %d", c.v)
		assert.Equal(t, c.v, decodeLongBytes(t, c.want), "decode %d", c.v)
	}
}

func TestLongRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		v := int64(rnd.Uint64())
		encoded := EncodeLong(v)
		assert.LessOrEqual(t, len(encoded), maxVarintBytes)
		got := decodeLongBytes(t, encoded)
		assert.Equal(t, v, got)
	}
}

func TestDecodeLongOverflow(t *testing.T) {
	// 11 continuation bytes with the high bit always set never terminates.
	buf := bytes.Repeat([]byte{0xff}, 11)
	_, err := DecodeLong(bufio.NewReader(bytes.NewReader(buf)))
	require.Error(t, err)
	assert.True(t, ValueOverflowKind(err))
}

func ValueOverflowKind(err error) bool {
	return err != nil && bytes.Contains([]byte(err.Error()), []byte("value overflow"))
}

func TestDecodeLongCleanEOF(t *testing.T) {
	_, err := DecodeLong(bufio.NewReader(bytes.NewReader(nil)))
	assert.Equal(t, io.EOF, err)
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "hello, world", string(make([]byte, 300))}
	for _, s := range cases {
		encoded := EncodeString(s)
		got, err := DecodeString(bufio.NewReader(bytes.NewReader(encoded)))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestSkipString(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeString("skip-me"))
	buf.Write(EncodeString("keep-me"))
	r := bufio.NewReader(&buf)
	require.NoError(t, SkipString(r))
	got, err := DecodeString(r)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", got)
}

func TestMapStringStringRoundTrip(t *testing.T) {
	m := map[string]string{
		"avro.schema": `{"type":"record"}`,
		"avro.codec":  "null",
	}
	encoded := EncodeMapStringString(m)
	got, err := DecodeMapStringString(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMapStringStringEmpty(t *testing.T) {
	encoded := EncodeMapStringString(nil)
	got, err := DecodeMapStringString(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	assert.Empty(t, got)
}
