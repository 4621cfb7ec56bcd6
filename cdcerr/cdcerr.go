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

// Package cdcerr defines the error taxonomy shared by every component of
// the binlog-to-Avro CDC core: IO, Corruption, ValueOverflow, Memory and
// Schema. Every decode, encode or tracker operation that can fail returns
// one of these kinds rather than a bare error, so callers can branch on
// failure class without string matching.
package cdcerr

import (
	"fmt"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	// IO covers truncated reads, short writes and filesystem failures.
	IO = errors.NewKind("io: %s")
	// Corruption covers magic mismatch, bad sync marker, missing schema
	// metadata, or a block size inconsistent with its record count.
	Corruption = errors.NewKind("corruption: %s")
	// ValueOverflow is returned when a varint runs past 10 bytes.
	ValueOverflow = errors.NewKind("value overflow: %s")
	// Memory covers allocation failure on a path that cannot retry.
	Memory = errors.NewKind("memory: %s")
	// Schema covers a table-map referencing an untracked table, or a
	// column-count mismatch between a table-map and its tracked create.
	Schema = errors.NewKind("schema: %s")
)

// LastError is embedded by handle types that need to expose a monotonic,
// human-readable observable of the most recent failure (spec §7's
// "last_error" channel) without forcing every caller to thread an error
// value through unrelated accessors.
type LastError struct {
	err error
}

// Set records err as the current last error. A nil err clears it.
func (l *LastError) Set(err error) {
	l.err = err
}

// Err returns the last recorded error, or nil.
func (l *LastError) Err() error {
	return l.err
}

// String renders the last error for diagnostics, or "" if none occurred.
func (l *LastError) String() string {
	if l.err == nil {
		return ""
	}
	return fmt.Sprintf("%v", l.err)
}
