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

// Package gtidindex maintains a persistent, resumable index from a
// MariaDB GTID triple to the (.avro file, block offset) that contains
// it, per spec.md §4.J.
package gtidindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/boltdb/bolt"

	"github.com/mariadb-corporation/avrorouter/avro"
	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

var (
	gtidBucket     = []byte("gtid")
	progressBucket = []byte("progress")
)

// Key is a MariaDB GTID triple: domain-server_id-sequence.
type Key struct {
	Domain   uint32
	ServerID uint32
	Sequence uint64
}

// ParseGTID parses the "domain-server_id-sequence" string format a
// ChangeRecord's GTID field carries (spec.md §8 S3's "0-1-100").
func ParseGTID(s string) (Key, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return Key{}, cdcerr.Corruption.New("malformed GTID: " + s)
	}
	domain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Key{}, cdcerr.Corruption.New("malformed GTID domain: " + s)
	}
	server, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Key{}, cdcerr.Corruption.New("malformed GTID server id: " + s)
	}
	seq, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Key{}, cdcerr.Corruption.New("malformed GTID sequence: " + s)
	}
	return Key{Domain: uint32(domain), ServerID: uint32(server), Sequence: seq}, nil
}

func (k Key) bytes() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], k.Domain)
	binary.BigEndian.PutUint32(buf[4:8], k.ServerID)
	binary.BigEndian.PutUint64(buf[8:16], k.Sequence)
	return buf
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%d", k.Domain, k.ServerID, k.Sequence)
}

// Position is where a GTID's ChangeRecord lives: the Avro file and the
// byte offset of the block header that contains it.
type Position struct {
	File   string
	Offset int64
}

// Index is a boltdb-backed, resumable GTID -> Position index.
type Index struct {
	db *bolt.DB
}

// Open opens (creating if absent) a gtid index database at path.
func Open(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, cdcerr.IO.New(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(gtidBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(progressBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cdcerr.IO.New(err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (idx *Index) Close() error {
	if err := idx.db.Close(); err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}

// Put inserts or replaces the position recorded for key, per spec.md
// §4.J's "indexing is idempotent — inserting the same key twice is a
// replace".
func (idx *Index) Put(key Key, pos Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return cdcerr.Memory.New(err)
	}
	err = idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(gtidBucket).Put(key.bytes(), data)
	})
	if err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}

// Get returns the position recorded for key, if any.
func (idx *Index) Get(key Key) (Position, bool, error) {
	var pos Position
	found := false
	err := idx.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(gtidBucket).Get(key.bytes())
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &pos)
	})
	if err != nil {
		return Position{}, false, cdcerr.IO.New(err)
	}
	return pos, found, nil
}

// resumeOffset returns the last block offset of file that has been
// fully indexed, or -1 if file has never been indexed.
func (idx *Index) resumeOffset(file string) (int64, error) {
	var offset int64 = -1
	err := idx.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(progressBucket).Get([]byte(file))
		if data == nil {
			return nil
		}
		offset = int64(binary.BigEndian.Uint64(data))
		return nil
	})
	if err != nil {
		return -1, cdcerr.IO.New(err)
	}
	return offset, nil
}

func (idx *Index) setResumeOffset(file string, offset int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	err := idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(progressBucket).Put([]byte(file), buf)
	})
	if err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}

// IndexFile walks every not-yet-indexed block of the Avro file at path,
// inserting a (domain, server_id, sequence) -> (file, block offset) entry
// for every record's GTID field, and persists the last fully-indexed
// block offset so a later call resumes without rework, per spec.md §4.J.
func (idx *Index) IndexFile(path string) error {
	resume, err := idx.resumeOffset(path)
	if err != nil {
		return err
	}

	c, err := avro.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		err := c.NextBlock()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		blockOffset := c.BlockStartOffset()
		if blockOffset <= resume {
			continue
		}

		for {
			rec, err := c.ReadRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			gtidStr, _ := rec["GTID"].(string)
			key, err := ParseGTID(gtidStr)
			if err != nil {
				continue
			}
			if err := idx.Put(key, Position{File: path, Offset: blockOffset}); err != nil {
				return err
			}
		}

		if err := idx.setResumeOffset(path, blockOffset); err != nil {
			return err
		}
	}
}
