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

// Package convert builds per-table Avro schemas from a table-map/DDL
// pair and runs the binlog-to-Avro converter loop.
package convert

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/mariadb-corporation/avrorouter/avro"
	"github.com/mariadb-corporation/avrorouter/binlog"
	"github.com/mariadb-corporation/avrorouter/cdcerr"
	"github.com/mariadb-corporation/avrorouter/ddl"
)

// EventKind labels a ChangeRecord's event_type field, per spec.md §4.H.
type EventKind string

const (
	EventInsert       EventKind = "insert"
	EventUpdateBefore EventKind = "update_before"
	EventUpdateAfter  EventKind = "update_after"
	EventDelete       EventKind = "delete"
)

var eventKindSymbols = []string{string(EventInsert), string(EventUpdateBefore), string(EventUpdateAfter), string(EventDelete)}

// BuildSchema constructs the fixed ChangeRecord schema for one
// (TableCreate, TableMap) pairing, per spec.md §4.H: the GTID/timestamp/
// event_type header followed by one field per tracked column name, typed
// by the table-map's column-type vector through the fixed MySQL->Avro
// map.
func BuildSchema(tc *ddl.TableCreate, tm *binlog.TableMap) (*avro.Schema, error) {
	if len(tc.ColumnNames) != len(tm.ColumnTypes) {
		return nil, cdcerr.Schema.New(fmt.Sprintf(
			"column name count %d does not match table-map column count %d for %s",
			len(tc.ColumnNames), len(tm.ColumnTypes), tc.QualifiedName()))
	}

	fields := []avro.Field{
		{Name: "GTID", Type: avro.TypeString},
		{Name: "timestamp", Type: avro.TypeInt},
		{Name: "event_type", Type: avro.TypeEnum, Symbols: eventKindSymbols},
	}
	for i, name := range tc.ColumnNames {
		fields = append(fields, avro.Field{
			Name: name,
			Type: fieldTypeFor(binlog.AvroTypeForColumn(binlog.ColumnType(tm.ColumnTypes[i]))),
		})
	}

	return &avro.Schema{
		Namespace: "MaxScaleChangeDataSchema.avro",
		Name:      "ChangeRecord",
		Fields:    fields,
	}, nil
}

func fieldTypeFor(name string) avro.FieldType {
	switch name {
	case "int":
		return avro.TypeInt
	case "long":
		return avro.TypeLong
	case "float":
		return avro.TypeFloat
	case "double":
		return avro.TypeDouble
	case "bytes":
		return avro.TypeBytes
	case "null":
		return avro.TypeNull
	default:
		return avro.TypeString
	}
}

// ProjectRecord coerces one decoded row image plus its envelope fields
// into the map<string,interface{}> shape avro.Writer.AppendRecordToBuffer
// and avro.Schema.EncodeField expect, per schema's field order.
func ProjectRecord(schema *avro.Schema, gtid string, timestamp int64, kind EventKind, row []interface{}) (map[string]interface{}, error) {
	rec := map[string]interface{}{
		"GTID":       gtid,
		"timestamp":  timestamp,
		"event_type": string(kind),
	}
	columnFields := schema.Fields[3:]
	if len(row) != len(columnFields) {
		return nil, cdcerr.Schema.New(fmt.Sprintf(
			"row has %d values, schema expects %d columns", len(row), len(columnFields)))
	}
	for i, f := range columnFields {
		rec[f.Name] = coerce(f.Type, row[i])
	}
	return rec, nil
}

// coerce adapts a raw decoded column value (as binlog.DecodeColumn
// returns it) to the Go type avro.EncodeField expects for f's Avro type,
// using spf13/cast for the numeric conversions binlog's per-type decode
// doesn't already produce in the target shape (e.g. BIT/YEAR surface as
// int64 regardless of the target being a 32-bit Avro int).
func coerce(t avro.FieldType, v interface{}) interface{} {
	if v == nil {
		return zeroFor(t)
	}
	switch t {
	case avro.TypeInt:
		return int32(cast.ToInt64(v))
	case avro.TypeLong:
		return cast.ToInt64(v)
	case avro.TypeFloat:
		return cast.ToFloat32(v)
	case avro.TypeDouble:
		return cast.ToFloat64(v)
	case avro.TypeString, avro.TypeEnum:
		return cast.ToString(v)
	case avro.TypeBytes:
		if b, ok := v.([]byte); ok {
			return b
		}
		return []byte(cast.ToString(v))
	default:
		return v
	}
}

func zeroFor(t avro.FieldType) interface{} {
	switch t {
	case avro.TypeInt:
		return int32(0)
	case avro.TypeLong:
		return int64(0)
	case avro.TypeFloat:
		return float32(0)
	case avro.TypeDouble:
		return float64(0)
	case avro.TypeBytes:
		return []byte{}
	case avro.TypeNull:
		return nil
	default:
		return ""
	}
}
