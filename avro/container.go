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
	"os"

	uuid "github.com/satori/go.uuid"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

const (
	magicString = "Obj\x01"
	syncSize    = 16
)

// countingByteReader wraps a *bufio.Reader and tracks how many bytes have
// been pulled through it, so callers can measure how much of an
// announced block payload a record decode actually consumed.
type countingByteReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// Container is an open-for-read Avro object container: a parsed header
// plus cursor state for the BLOCK_HEADER/BLOCK_BODY/BLOCK_SYNC state
// machine of spec.md §4.B.
type Container struct {
	cdcerr.LastError

	path   string
	file   *os.File
	cr     *countingByteReader
	schema *Schema
	codec  string
	sync   [syncSize]byte

	blockRecordsRemaining int64
	blockPayloadRemaining int64
	blockStartOffset      int64
	blockStarted          bool // false until the first block header is read
	closed                bool
}

// Open verifies the magic, reads the metadata map (capturing avro.schema),
// and reads the sync marker, leaving the cursor positioned at the first
// block's header.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cdcerr.IO.New(err)
	}
	cr := &countingByteReader{r: bufio.NewReader(f)}

	magicBuf := make([]byte, 4)
	if _, err := io.ReadFull(cr, magicBuf); err != nil {
		f.Close()
		return nil, cdcerr.IO.New(err)
	}
	if string(magicBuf) != magicString {
		f.Close()
		return nil, cdcerr.Corruption.New("bad avro container magic")
	}

	meta, err := DecodeMapStringString(cr)
	if err != nil {
		f.Close()
		return nil, err
	}
	schemaJSON, ok := meta["avro.schema"]
	if !ok {
		f.Close()
		return nil, cdcerr.Corruption.New("metadata missing avro.schema")
	}
	if codec, ok := meta["avro.codec"]; ok && codec != "null" {
		f.Close()
		return nil, cdcerr.Corruption.New("unsupported avro.codec: " + codec)
	}
	schema, err := ParseSchema([]byte(schemaJSON))
	if err != nil {
		f.Close()
		return nil, err
	}

	var sync [syncSize]byte
	if _, err := io.ReadFull(cr, sync[:]); err != nil {
		f.Close()
		return nil, cdcerr.IO.New(err)
	}

	return &Container{
		path:   path,
		file:   f,
		cr:     cr,
		schema: schema,
		codec:  meta["avro.codec"],
		sync:   sync,
	}, nil
}

// Schema returns the container's parsed writer schema.
func (c *Container) Schema() *Schema { return c.schema }

// Close releases the underlying file handle. It does not modify the file.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}

// NextBlock discards any unread records of the current block, verifies
// the trailing sync marker, and reads the next block's (records, size)
// header. It returns io.EOF when no further blocks remain.
func (c *Container) NextBlock() error {
	err := c.nextBlock()
	if err != nil && err != io.EOF {
		c.Set(err)
	}
	return err
}

func (c *Container) nextBlock() error {
	if c.blockPayloadRemaining > 0 {
		if _, err := io.CopyN(io.Discard, c.cr, c.blockPayloadRemaining); err != nil {
			return cdcerr.IO.New(err)
		}
		c.blockPayloadRemaining = 0
	}

	if c.blockStarted {
		var sync [syncSize]byte
		if _, err := io.ReadFull(c.cr, sync[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return io.EOF
			}
			return cdcerr.IO.New(err)
		}
		if sync != c.sync {
			return cdcerr.Corruption.New("block sync marker does not match file sync")
		}
	}

	blockStart := c.cr.n
	records, err := DecodeLong(c.cr)
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return err
	}
	if records <= 0 {
		return cdcerr.Corruption.New("block record count must be positive")
	}
	c.blockStartOffset = blockStart
	size, err := DecodeLong(c.cr)
	if err != nil {
		return err
	}
	if size < 0 {
		return cdcerr.Corruption.New("negative block payload size")
	}

	c.blockRecordsRemaining = records
	c.blockPayloadRemaining = size
	c.blockStarted = true
	return nil
}

// ReadRecord returns the next record within the current block, projected
// to a JSON-shaped map per the container's schema. When the current
// block is exhausted it returns io.EOF; callers must then call
// NextBlock.
func (c *Container) ReadRecord() (map[string]interface{}, error) {
	if c.blockRecordsRemaining == 0 {
		return nil, io.EOF
	}
	before := c.cr.n
	rec, err := c.schema.Project(c.cr)
	if err != nil {
		c.Set(err)
		return nil, err
	}
	c.blockPayloadRemaining -= c.cr.n - before
	if c.blockPayloadRemaining < 0 {
		err := cdcerr.Corruption.New("record decode read past announced block size")
		c.Set(err)
		return nil, err
	}
	c.blockRecordsRemaining--
	return rec, nil
}

// RecordsRemainingInBlock reports how many records are left to read in
// the current block.
func (c *Container) RecordsRemainingInBlock() int64 { return c.blockRecordsRemaining }

// BlockStartOffset returns the byte offset, from the start of the file,
// of the current block's header (the "records" long). gtidindex uses
// this as the resumable position it persists per spec.md §4.J.
func (c *Container) BlockStartOffset() int64 { return c.blockStartOffset }

// SeekRecord advances offset records from the current cursor, crossing
// block boundaries by discarding whole blocks and then decoding
// individual records once the target lies within a block.
func (c *Container) SeekRecord(offset int64) error {
	for offset > 0 {
		if offset < c.blockRecordsRemaining {
			for i := int64(0); i < offset; i++ {
				if _, err := c.ReadRecord(); err != nil {
					return err
				}
			}
			return nil
		}
		offset -= c.blockRecordsRemaining
		if err := c.NextBlock(); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlockBinary reads the next whole block (header, payload, trailing
// sync) and returns its raw bytes unparsed, for forwarding to a consumer
// without re-serializing it.
func (c *Container) ReadBlockBinary() ([]byte, error) {
	if err := c.nextBlock(); err != nil {
		if err != io.EOF {
			c.Set(err)
		}
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(EncodeLong(c.blockRecordsRemaining))
	buf.Write(EncodeLong(c.blockPayloadRemaining))

	payload := make([]byte, c.blockPayloadRemaining)
	if _, err := io.ReadFull(c.cr, payload); err != nil {
		err = cdcerr.IO.New(err)
		c.Set(err)
		return nil, err
	}
	buf.Write(payload)
	c.blockPayloadRemaining = 0

	var sync [syncSize]byte
	if _, err := io.ReadFull(c.cr, sync[:]); err != nil {
		err = cdcerr.IO.New(err)
		c.Set(err)
		return nil, err
	}
	if sync != c.sync {
		err := cdcerr.Corruption.New("block sync marker does not match file sync")
		c.Set(err)
		return nil, err
	}
	buf.Write(sync[:])
	c.blockRecordsRemaining = 0

	return buf.Bytes(), nil
}

// Writer is an open-for-write Avro container: owns the in-memory
// pending-block buffer and appends finalized blocks to disk.
type Writer struct {
	cdcerr.LastError

	path   string
	file   *os.File
	schema *Schema
	sync   [syncSize]byte

	buf            bytes.Buffer
	recordsInBlock int
}

// Create opens a new Avro container for writing, emitting the magic,
// metadata map (with avro.schema and avro.codec=null) and a fresh random
// sync marker.
func Create(path string, schema *Schema) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, cdcerr.IO.New(err)
	}

	schemaJSON, err := schema.JSON()
	if err != nil {
		f.Close()
		return nil, err
	}

	var sync [syncSize]byte
	copy(sync[:], uuid.NewV4().Bytes())

	if _, err := f.Write([]byte(magicString)); err != nil {
		f.Close()
		return nil, cdcerr.IO.New(err)
	}
	meta := map[string]string{
		"avro.schema": string(schemaJSON),
		"avro.codec":  "null",
	}
	if _, err := f.Write(EncodeMapStringString(meta)); err != nil {
		f.Close()
		return nil, cdcerr.IO.New(err)
	}
	if _, err := f.Write(sync[:]); err != nil {
		f.Close()
		return nil, cdcerr.IO.New(err)
	}

	return &Writer{path: path, file: f, schema: schema, sync: sync}, nil
}

// OpenForAppend recovers path to its last complete sync marker (see
// Recover) and reopens it positioned for further block appends, reusing
// its existing schema and sync marker.
func OpenForAppend(path string) (*Writer, error) {
	if err := Recover(path); err != nil {
		return nil, err
	}
	c, err := Open(path)
	if err != nil {
		return nil, err
	}
	c.file.Close()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, cdcerr.IO.New(err)
	}
	return &Writer{path: path, file: f, schema: c.schema, sync: c.sync}, nil
}

// AppendRecordToBuffer encodes values per the writer's schema and pushes
// the bytes into the in-memory pending block buffer, which grows by
// doubling (bytes.Buffer's own growth policy) as records accumulate.
func (w *Writer) AppendRecordToBuffer(values map[string]interface{}) error {
	for _, f := range w.schema.Fields {
		b, err := EncodeField(f, values[f.Name])
		if err != nil {
			w.Set(err)
			return err
		}
		w.buf.Write(b)
	}
	w.recordsInBlock++
	return nil
}

// RecordsInBlock reports how many records are currently buffered,
// unflushed.
func (w *Writer) RecordsInBlock() int { return w.recordsInBlock }

// BlockByteSize reports the current pending block payload size in bytes.
func (w *Writer) BlockByteSize() int { return w.buf.Len() }

// FinalizeBlock atomically writes the pending block (records, size,
// payload, sync) to disk. If any part of the write is short, the file is
// truncated back to its pre-append length and the error is surfaced; the
// in-memory buffer is left untouched so the caller may retry.
func (w *Writer) FinalizeBlock() error {
	if w.recordsInBlock == 0 {
		return nil
	}

	info, err := w.file.Stat()
	if err != nil {
		err = cdcerr.IO.New(err)
		w.Set(err)
		return err
	}
	preLen := info.Size()

	var block bytes.Buffer
	block.Write(EncodeLong(int64(w.recordsInBlock)))
	block.Write(EncodeLong(int64(w.buf.Len())))
	block.Write(w.buf.Bytes())
	block.Write(w.sync[:])

	n, writeErr := w.file.Write(block.Bytes())
	if writeErr != nil || n < block.Len() {
		_ = w.file.Truncate(preLen)
		_, _ = w.file.Seek(preLen, io.SeekStart)
		wrapped := cdcerr.IO.New(writeErr)
		w.Set(wrapped)
		return wrapped
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Truncate(preLen)
		wrapped := cdcerr.IO.New(err)
		w.Set(wrapped)
		return wrapped
	}

	w.buf.Reset()
	w.recordsInBlock = 0
	return nil
}

// Close finalizes any pending block and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.FinalizeBlock(); err != nil {
		return err
	}
	return w.file.Close()
}

// Path returns the writer's backing file path.
func (w *Writer) Path() string { return w.path }

// Schema returns the schema the writer was created or reopened with.
func (w *Writer) Schema() *Schema { return w.schema }

// Recover truncates path back to the end of its last block whose trailing
// sync marker fully matches the file's sync, undoing a crash mid-append
// per spec.md §5's crash-recovery guarantee.
func Recover(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return cdcerr.IO.New(err)
	}
	defer f.Close()

	cr := &countingByteReader{r: bufio.NewReader(f)}

	magicBuf := make([]byte, 4)
	if _, err := io.ReadFull(cr, magicBuf); err != nil {
		return cdcerr.IO.New(err)
	}
	if string(magicBuf) != magicString {
		return cdcerr.Corruption.New("bad avro container magic")
	}
	if _, err := DecodeMapStringString(cr); err != nil {
		return err
	}
	var sync [syncSize]byte
	if _, err := io.ReadFull(cr, sync[:]); err != nil {
		return cdcerr.IO.New(err)
	}

	lastGood := cr.n
	for {
		records, err := DecodeLong(cr)
		if err != nil || records <= 0 {
			break
		}
		size, err := DecodeLong(cr)
		if err != nil || size < 0 {
			break
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(cr, payload); err != nil {
			break
		}
		var blockSync [syncSize]byte
		if _, err := io.ReadFull(cr, blockSync[:]); err != nil {
			break
		}
		if blockSync != sync {
			break
		}
		lastGood = cr.n
	}

	if err := f.Truncate(lastGood); err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}
