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

package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mariadb-corporation/avrorouter/avro"
	"github.com/mariadb-corporation/avrorouter/binlog"
	"github.com/mariadb-corporation/avrorouter/cdcerr"
	"github.com/mariadb-corporation/avrorouter/ddl"
)

// DefaultRowThreshold and DefaultTxThreshold are the block-grouping
// defaults of spec.md §4.I.
const (
	DefaultRowThreshold = 1000
	DefaultTxThreshold  = 1
)

// MaxBackoff is the ceiling spec.md §4.I suggests for the LAST_FILE
// rotation backoff.
const MaxBackoff = 15 * time.Second

var (
	recordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avrorouter",
		Name:      "records_written_total",
		Help:      "Number of Avro records appended, by table.",
	}, []string{"table"})
	blocksFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avrorouter",
		Name:      "blocks_finalized_total",
		Help:      "Number of Avro blocks finalized, by table.",
	}, []string{"table"})
	tablesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "avrorouter",
		Name:      "tables_tracked",
		Help:      "Number of distinct table versions with an open AvroTable.",
	})
)

func init() {
	prometheus.MustRegister(recordsWritten, blocksFinalized, tablesTracked)
}

// AvroTable is one table-version's open output, per spec.md §3.
type AvroTable struct {
	writer         *avro.Writer
	recordsInBlock int
	txInBlock      int
}

// qualifiedVersion keys the open-AvroTable map by database.table.version.
func qualifiedVersion(database, table string, version uint32) string {
	return fmt.Sprintf("%s.%s.%06d", database, table, version)
}

// Converter runs the per-binlog-file state machine of spec.md §4.I: it
// owns the table-map cache and DDL tracker behind a single RWMutex (the
// concurrency model of spec.md §5) and the set of currently open
// AvroTables.
type Converter struct {
	mu sync.RWMutex
	cdcerr.LastError

	OutDir       string
	RowThreshold int
	TxThreshold  int

	tableMaps *binlog.TableMapCache
	tracker   *ddl.Tracker
	tables    map[string]*AvroTable

	currentGTID     string
	currentDatabase string

	tracer opentracing.Tracer
	log    *logrus.Logger
}

// NewConverter builds a Converter writing Avro files under outDir.
func NewConverter(outDir string, log *logrus.Logger, tracer opentracing.Tracer) *Converter {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	return &Converter{
		OutDir:       outDir,
		RowThreshold: DefaultRowThreshold,
		TxThreshold:  DefaultTxThreshold,
		tableMaps:    binlog.NewTableMapCache(),
		tracker:      ddl.NewTracker(),
		tables:       make(map[string]*AvroTable),
		tracer:       tracer,
		log:          log,
	}
}

// Snapshot returns the current qualified-version keys of every open
// AvroTable, taking the read lock; this is the "reader thread" stand-in
// of spec.md §5/SPEC_FULL.md §5, enough to drive a -serve-json debug
// dump without a full consumer protocol.
func (c *Converter) Snapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.tables))
	for k := range c.tables {
		keys = append(keys, k)
	}
	return keys
}

// TablePath returns the .avro file path for an open table-version, or
// "" if none is open under that key.
func (c *Converter) TablePath(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.tables[key]
	if !ok {
		return ""
	}
	return at.writer.Path()
}

var createTableMatch = regexp.MustCompile(`(?i)create[\w\s]+table`)
var alterTableMatch = regexp.MustCompile(`(?i)alter\s+table`)

// HandleQuery dispatches a QUERY_EVENT, per spec.md §4.I.
func (c *Converter) HandleQuery(database, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentDatabase = database

	switch {
	case createTableMatch.MatchString(sql):
		_, err := c.tracker.ApplyCreate(database, sql, c.currentGTID)
		return err
	case alterTableMatch.MatchString(sql):
		_, err := c.tracker.ApplyAlter(database, sql, c.currentGTID)
		return err
	default:
		return nil
	}
}

// SetGTID records the replication position carried by the most recent
// GTID event, copied into every TableMap created afterward per spec.md
// §4.G.
func (c *Converter) SetGTID(gtid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentGTID = gtid
}

// HandleTableMap dispatches a TABLE_MAP_EVENT, per spec.md §4.I: updates
// the table-map cache, and if the replace-on-change rule produced a new
// entry, allocates a fresh AvroTable for the tracked CREATE's current
// version.
func (c *Converter) HandleTableMap(tm *binlog.TableMap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm.GTID = c.currentGTID
	stored := c.tableMaps.Put(tm)

	tc, ok := c.tracker.Lookup(tm.Database, tm.Table)
	if !ok {
		return cdcerr.Schema.New(fmt.Sprintf("table-map for untracked table %s.%s", tm.Database, tm.Table))
	}

	key := qualifiedVersion(tm.Database, tm.Table, tc.Version)
	if _, open := c.tables[key]; open {
		return nil
	}
	return c.openAvroTable(key, tc, stored)
}

func (c *Converter) openAvroTable(key string, tc *ddl.TableCreate, tm *binlog.TableMap) error {
	schema, err := BuildSchema(tc, tm)
	if err != nil {
		c.Set(err)
		return err
	}

	schemaDoc, err := schema.JSON()
	if err != nil {
		c.Set(err)
		return err
	}
	avscPath := filepath.Join(c.OutDir, key+".avsc")
	if err := writeFileIfAbsent(avscPath, schemaDoc); err != nil {
		c.Set(err)
		return err
	}

	avroPath := filepath.Join(c.OutDir, key+".avro")
	w, err := avro.Create(avroPath, schema)
	if err != nil {
		c.Set(err)
		return err
	}
	c.tables[key] = &AvroTable{writer: w}
	tablesTracked.Set(float64(len(c.tables)))
	return nil
}

// HandleRowEvent dispatches a WRITE/UPDATE/DELETE_ROWS event, per
// spec.md §4.I: look up the table-map, decode every row image, and
// append one ChangeRecord per image (before+after for updates).
func (c *Converter) HandleRowEvent(ev *binlog.Event, v2, isUpdate, isDelete bool, timestamp int64) error {
	span := c.tracer.StartSpan("convert.HandleRowEvent")
	defer span.Finish()

	c.mu.Lock()
	defer c.mu.Unlock()

	tableID, err := binlog.ReverseBytesToUint(reverseTableID(ev.Body), 0, 6)
	if err != nil {
		return err
	}
	// MariaDB's dummy END_STATEMENT row event (table id 0x00ffffff) has
	// no table map behind it; it carries no rows and is skipped here.
	if tableID == 0x00ffffff && len(ev.Body) >= 8 && ev.Body[6]&0x01 != 0 {
		return nil
	}
	tm, ok := c.tableMaps.Lookup(tableID)
	if !ok {
		return cdcerr.Schema.New(fmt.Sprintf("row event for unknown table id %d", tableID))
	}

	rowEv, err := binlog.DecodeRowEvent(tm, ev.Body, v2, isUpdate, isDelete)
	if err != nil {
		c.Set(err)
		return err
	}
	if rowEv.Skip {
		return nil
	}
	// YEAR columns decode to the raw stored byte; the 1900 offset is
	// applied here.
	for _, imgs := range [][]binlog.RowImage{rowEv.Before, rowEv.After} {
		for _, img := range imgs {
			for i, v := range img.Values {
				if y, ok := v.(int64); ok && binlog.ColumnType(tm.ColumnTypes[i]) == binlog.TypeYear {
					img.Values[i] = y + 1900
				}
			}
		}
	}

	tc, ok := c.tracker.Lookup(tm.Database, tm.Table)
	if !ok {
		return cdcerr.Schema.New(fmt.Sprintf("row event for untracked table %s.%s", tm.Database, tm.Table))
	}
	key := qualifiedVersion(tm.Database, tm.Table, tc.Version)
	at, ok := c.tables[key]
	if !ok {
		return cdcerr.Schema.New(fmt.Sprintf("row event before table-map opened %s", key))
	}
	schema := at.writer.Schema()

	switch {
	case isUpdate:
		for i := range rowEv.Before {
			if err := c.appendRecord(at, key, schema, tm.GTID, timestamp, EventUpdateBefore, rowEv.Before[i].Values); err != nil {
				return err
			}
			if err := c.appendRecord(at, key, schema, tm.GTID, timestamp, EventUpdateAfter, rowEv.After[i].Values); err != nil {
				return err
			}
		}
	case isDelete:
		for _, img := range rowEv.Before {
			if err := c.appendRecord(at, key, schema, tm.GTID, timestamp, EventDelete, img.Values); err != nil {
				return err
			}
		}
	default:
		for _, img := range rowEv.After {
			if err := c.appendRecord(at, key, schema, tm.GTID, timestamp, EventInsert, img.Values); err != nil {
				return err
			}
		}
	}

	tc.MarkUsed()
	return nil
}

func (c *Converter) appendRecord(at *AvroTable, key string, schema *avro.Schema, gtid string, timestamp int64, kind EventKind, row []interface{}) error {
	rec, err := ProjectRecord(schema, gtid, timestamp, kind, row)
	if err != nil {
		c.Set(err)
		return err
	}
	if err := at.writer.AppendRecordToBuffer(rec); err != nil {
		c.Set(err)
		return err
	}
	recordsWritten.WithLabelValues(key).Inc()
	at.recordsInBlock++

	threshold := c.RowThreshold
	if threshold <= 0 {
		threshold = DefaultRowThreshold
	}
	if at.recordsInBlock >= threshold {
		if err := at.writer.FinalizeBlock(); err != nil {
			c.Set(err)
			return err
		}
		blocksFinalized.WithLabelValues(key).Inc()
		at.recordsInBlock = 0
	}
	return nil
}

// EndTransaction implements the transaction-count half of the
// block-grouping policy (spec.md §4.I): called once per committed
// transaction, it finalizes any AvroTable block that has accumulated at
// least TxThreshold transactions' worth of rows.
func (c *Converter) EndTransaction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	threshold := c.TxThreshold
	if threshold <= 0 {
		threshold = DefaultTxThreshold
	}
	for key, at := range c.tables {
		if at.recordsInBlock == 0 {
			continue
		}
		at.txInBlock++
		if at.txInBlock < threshold {
			continue
		}
		if err := at.writer.FinalizeBlock(); err != nil {
			c.Set(err)
			continue
		}
		blocksFinalized.WithLabelValues(key).Inc()
		at.recordsInBlock = 0
		at.txInBlock = 0
	}
}

// FlushAll finalizes every open AvroTable's current block and closes it,
// per the ROTATE_EVENT/end-of-file step of spec.md §4.I.
func (c *Converter) FlushAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, at := range c.tables {
		if err := at.writer.Close(); err != nil {
			c.Set(err)
			return err
		}
		delete(c.tables, key)
	}
	tablesTracked.Set(float64(len(c.tables)))
	return nil
}

func reverseTableID(body []byte) []byte {
	out := make([]byte, 6)
	for i := 0; i < 6 && i < len(body); i++ {
		out[i] = body[5-i]
	}
	return out
}

// NextBinlogPath applies the rotation naming convention of spec.md §4.I:
// same stem, zero-padded sequence number advanced by one.
func NextBinlogPath(current string) (string, error) {
	dir := filepath.Dir(current)
	base := filepath.Base(current)
	m := binlogNameRe.FindStringSubmatch(base)
	if m == nil {
		return "", cdcerr.IO.New("binlog filename does not match <stem>.<sequence>")
	}
	seq, width := m[2], len(m[2])
	var n int64
	fmt.Sscanf(seq, "%d", &n)
	next := fmt.Sprintf("%s.%0*d", m[1], width, n+1)
	return filepath.Join(dir, next), nil
}

var binlogNameRe = regexp.MustCompile(`^(.+)\.(\d+)$`)

// writeFileIfAbsent implements the "duplicate write under the same
// version is suppressed" rule of spec.md §4.I for .avsc schema files.
func writeFileIfAbsent(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}
