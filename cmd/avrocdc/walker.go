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

package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mariadb-corporation/avrorouter/binlog"
	"github.com/mariadb-corporation/avrorouter/cdcerr"
	"github.com/mariadb-corporation/avrorouter/convert"
)

// errLastFile is returned by walkOneFile when it reaches the end of a file
// whose next-sequence sibling does not exist yet, the LAST_FILE state of
// spec.md §4.I.
var errLastFile = errors.New("reached last binlog file")

const headerSize = 19

// walkOneFile dispatches every event in path to conv in order, returning
// nil on a ROTATE_EVENT or clean end-of-file once the next file in
// sequence exists (the caller should continue with that file), or
// errLastFile when no next file exists yet.
func walkOneFile(conv *convert.Converter, path string, log *logrus.Logger) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", cdcerr.IO.New(err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(binlog.FileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return "", cdcerr.IO.New(err)
	}

	for {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return rotate(conv, path, log)
			}
			return "", cdcerr.IO.New(err)
		}

		size := binary.LittleEndian.Uint32(header[9:13])
		if size < headerSize {
			return "", cdcerr.Corruption.New("binlog event size smaller than header")
		}
		rest := make([]byte, size-headerSize)
		if _, err := io.ReadFull(r, rest); err != nil {
			return "", cdcerr.IO.New(err)
		}

		buf := append(header, rest...)
		ev, _, err := binlog.DecodeEvent(buf)
		if err != nil {
			return "", err
		}

		if ev.Type == binlog.EventRotate {
			return rotate(conv, path, log)
		}
		if err := dispatch(conv, ev); err != nil {
			return "", err
		}
	}
}

func dispatch(conv *convert.Converter, ev *binlog.Event) error {
	switch {
	case ev.Type == binlog.EventQuery:
		database, sql, err := binlog.DecodeQueryEvent(ev.Body)
		if err != nil {
			return err
		}
		return conv.HandleQuery(database, sql)
	case ev.Type == binlog.EventTableMapV1:
		tm, err := binlog.DecodeTableMapEvent(ev.Body)
		if err != nil {
			return err
		}
		return conv.HandleTableMap(tm)
	case ev.Type == binlog.EventGTID:
		gtid, err := binlog.DecodeGTIDEvent(ev.ServerID, ev.Body)
		if err != nil {
			return err
		}
		conv.SetGTID(gtid)
		return nil
	case ev.IsRowEvent():
		v2 := ev.HasExtraData()
		return conv.HandleRowEvent(ev, v2, ev.IsUpdate(), ev.IsDelete(), int64(ev.Timestamp))
	default:
		return nil
	}
}

// rotate flushes every open AvroTable and reports whether a next-sequence
// file is already on disk to continue from.
func rotate(conv *convert.Converter, path string, log *logrus.Logger) (string, error) {
	if err := conv.FlushAll(); err != nil {
		return "", err
	}
	next, err := convert.NextBinlogPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(next); err != nil {
		return "", errLastFile
	}
	log.WithField("path", next).Info("rotating to next binlog file")
	return next, nil
}

// run drives the converter loop across a sequence of binlog files
// starting at startPath, backing off with the exponential-up-to-ceiling
// policy of spec.md §4.I whenever it catches up to the replication
// source (LAST_FILE), until ctx is cancelled.
func run(ctx context.Context, conv *convert.Converter, startPath string, log *logrus.Logger) error {
	path := startPath
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		next, err := walkOneFile(conv, path, log)
		if err == errLastFile {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > convert.MaxBackoff {
				backoff = convert.MaxBackoff
			}
			continue
		}
		if err != nil {
			return err
		}
		backoff = time.Second
		path = next
	}
}
