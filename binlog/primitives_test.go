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

func TestLEIntConsume(t *testing.T) {
	v, n, err := LEIntConsume([]byte{0x05})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)
	assert.Equal(t, 1, n)

	v, n, err = LEIntConsume([]byte{0xfc, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0201), v)
	assert.Equal(t, 3, n)

	v, n, err = LEIntConsume([]byte{0xfd, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x030201), v)
	assert.Equal(t, 4, n)

	v, n, err = LEIntConsume([]byte{0xfe, 1, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 9, n)

	_, _, err = LEIntConsume([]byte{0xfb})
	assert.Error(t, err)
}

func TestLEStringConsume(t *testing.T) {
	s, n, err := LEStringConsume([]byte{0x03, 'a', 'b', 'c'})
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	assert.Equal(t, 4, n)
}

func TestReadBEHelpers(t *testing.T) {
	v3, err := Read3BE([]byte{0x01, 0x02, 0x03}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x010203), v3)

	v4, err := Read4BE([]byte{0x01, 0x02, 0x03, 0x04}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v4)

	v5, err := Read5BE([]byte{0x01, 0x02, 0x03, 0x04, 0x05}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405), v5)
}

func TestNullBitmapHelpers(t *testing.T) {
	assert.Equal(t, 1, NullBitmapSize(8))
	assert.Equal(t, 2, NullBitmapSize(9))

	bitmap := []byte{0b00000101}
	assert.True(t, BitmapIsSet(bitmap, 0))
	assert.False(t, BitmapIsSet(bitmap, 1))
	assert.True(t, BitmapIsSet(bitmap, 2))
	assert.Equal(t, 2, CountBitmapSet(bitmap, 8))
}
