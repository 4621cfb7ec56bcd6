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

package replicasource

import (
	"os"
	"path/filepath"

	"github.com/mariadb-corporation/avrorouter/binlog"
	"github.com/mariadb-corporation/avrorouter/cdcerr"
	"github.com/mariadb-corporation/avrorouter/convert"
)

// relayWriter appends raw binlog event bytes to a sequence of files named
// <stem>.<6-digit-sequence>, the same convention convert.Converter's
// rotation logic expects on the read side.
type relayWriter struct {
	dir  string
	stem string
	path string
	f    *os.File
}

func initialRelayPath(dir, stem string) string {
	return filepath.Join(dir, stem+".000001")
}

func newRelayWriter(dir, stem string) (*relayWriter, error) {
	rw := &relayWriter{dir: dir, stem: stem}
	if err := rw.open(initialRelayPath(dir, stem)); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *relayWriter) open(path string) error {
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return cdcerr.IO.New(err)
	}
	rw.f = f
	rw.path = path
	if !existed {
		if _, err := f.Write(binlog.FileMagic); err != nil {
			return cdcerr.IO.New(err)
		}
	}
	return nil
}

// Path returns the relay file currently being appended to.
func (rw *relayWriter) Path() string {
	return rw.path
}

// Append writes raw event bytes (replication header included) to the
// current relay file.
func (rw *relayWriter) Append(data []byte) error {
	if _, err := rw.f.Write(data); err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}

// Rotate closes the current relay file and opens the next sequence
// number, mirroring convert.Converter's own rotation on the consumer side.
func (rw *relayWriter) Rotate() error {
	next, err := convert.NextBinlogPath(rw.path)
	if err != nil {
		return err
	}
	if err := rw.Close(); err != nil {
		return err
	}
	return rw.open(next)
}

// Close closes the current relay file.
func (rw *relayWriter) Close() error {
	if rw.f == nil {
		return nil
	}
	err := rw.f.Close()
	rw.f = nil
	if err != nil {
		return cdcerr.IO.New(err)
	}
	return nil
}
