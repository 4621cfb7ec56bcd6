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
	"encoding/json"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// FieldType is one of the Avro primitive types this core projects to JSON.
// The core does not implement general Avro unions; FieldType is exactly
// the flat set spec.md §3 allows.
type FieldType int

const (
	// TypeInt is a zigzag-varint-encoded 32-bit integer.
	TypeInt FieldType = iota
	// TypeLong is a zigzag-varint-encoded 64-bit integer.
	TypeLong
	// TypeFloat is a 4-byte little-endian IEEE-754 float.
	TypeFloat
	// TypeDouble is an 8-byte little-endian IEEE-754 double.
	TypeDouble
	// TypeBool is a single byte, zero or non-zero.
	TypeBool
	// TypeBytes is a long-length-prefixed raw byte string.
	TypeBytes
	// TypeString is a long-length-prefixed UTF-8 string.
	TypeString
	// TypeNull contributes no bytes to the wire encoding.
	TypeNull
	// TypeEnum is a zigzag-varint index into Field.Symbols.
	TypeEnum
)

func (t FieldType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeBool:
		return "boolean"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Field is one ordered entry of a flat Avro record schema.
type Field struct {
	Name    string
	Type    FieldType
	Symbols []string // only populated for TypeEnum
}

// Schema is an ordered field list parsed out of a record schema's JSON.
// Field order is significant: it is the order records are written and read
// in, matching the "stable field ordering" requirement of spec.md §6.
type Schema struct {
	Name      string
	Namespace string
	Fields    []Field
}

// rawSchema mirrors the subset of Avro record-schema JSON this core
// writes and understands.
type rawSchema struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Namespace string          `json:"namespace"`
	Fields    []rawFieldEntry `json:"fields"`
}

type rawFieldEntry struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// ParseSchema decodes an Avro record-schema JSON document into an ordered
// Schema. Objects of the form {"type": T} unwrap to T; a union expressed
// as a JSON array takes its first element, since this core does not
// support general unions.
func ParseSchema(doc []byte) (*Schema, error) {
	var raw rawSchema
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, cdcerr.Corruption.New(err)
	}
	if raw.Type != "record" {
		return nil, cdcerr.Corruption.New("schema is not a record: " + raw.Type)
	}

	s := &Schema{Name: raw.Name, Namespace: raw.Namespace}
	for _, f := range raw.Fields {
		ft, symbols, err := parseFieldType(f.Type)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{Name: f.Name, Type: ft, Symbols: symbols})
	}
	return s, nil
}

func parseFieldType(raw json.RawMessage) (FieldType, []string, error) {
	// A bare JSON string: "int", "long", ...
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		ft, err := typeFromName(name)
		return ft, nil, err
	}

	// A union, expressed as a JSON array: take the first element.
	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err == nil {
		if len(union) == 0 {
			return 0, nil, cdcerr.Corruption.New("empty union type")
		}
		return parseFieldType(union[0])
	}

	// An object wrapping {"type": T}, optionally an enum with "symbols".
	var obj struct {
		Type    string   `json:"type"`
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, nil, cdcerr.Corruption.New(err)
	}
	if obj.Type == "enum" {
		return TypeEnum, obj.Symbols, nil
	}
	ft, err := typeFromName(obj.Type)
	return ft, nil, err
}

func typeFromName(name string) (FieldType, error) {
	switch name {
	case "int":
		return TypeInt, nil
	case "long":
		return TypeLong, nil
	case "float":
		return TypeFloat, nil
	case "double":
		return TypeDouble, nil
	case "boolean":
		return TypeBool, nil
	case "bytes":
		return TypeBytes, nil
	case "string":
		return TypeString, nil
	case "null":
		return TypeNull, nil
	case "enum":
		return TypeEnum, nil
	default:
		return 0, cdcerr.Corruption.New("unknown avro type: " + name)
	}
}

// JSON renders the schema back to the canonical record-schema document
// this core writes alongside each .avro file, preserving field order
// (JSON_PRESERVE_ORDER semantics of spec.md §6) since Go's struct-based
// json.Marshal already emits object keys and slice elements in the order
// given.
func (s *Schema) JSON() ([]byte, error) {
	raw := rawSchema{
		Type:      "record",
		Name:      s.Name,
		Namespace: s.Namespace,
	}
	for _, f := range s.Fields {
		var typeDoc interface{}
		if f.Type == TypeEnum {
			typeDoc = struct {
				Type    string   `json:"type"`
				Name    string   `json:"name"`
				Symbols []string `json:"symbols"`
			}{Type: "enum", Name: f.Name, Symbols: f.Symbols}
		} else {
			typeDoc = f.Type.String()
		}
		encodedType, err := json.Marshal(typeDoc)
		if err != nil {
			return nil, cdcerr.Memory.New(err)
		}
		raw.Fields = append(raw.Fields, rawFieldEntry{Name: f.Name, Type: encodedType})
	}
	return json.MarshalIndent(&raw, "", "  ")
}

// Project reads one record from r, field by field in declared order, and
// returns it as a JSON object keyed by field name.
func (s *Schema) Project(r byteReader) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		v, err := projectField(r, f)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func projectField(r byteReader, f Field) (interface{}, error) {
	switch f.Type {
	case TypeBool:
		return DecodeBool(r)
	case TypeInt, TypeLong:
		return DecodeLong(r)
	case TypeFloat:
		return DecodeFloat(r)
	case TypeDouble:
		return DecodeDouble(r)
	case TypeString:
		return DecodeString(r)
	case TypeBytes:
		return DecodeBytes(r)
	case TypeNull:
		return nil, nil
	case TypeEnum:
		idx, err := DecodeLong(r)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(f.Symbols) {
			return nil, cdcerr.Corruption.New("enum index out of range")
		}
		return f.Symbols[idx], nil
	default:
		return nil, cdcerr.Corruption.New("unsupported field type")
	}
}

// EncodeField serializes a single value according to f's declared type,
// used by the record writer side (the converter assembling a row) to
// allocate a typed write buffer per spec.md §4.C "allocate typed writer
// buffers".
func EncodeField(f Field, v interface{}) ([]byte, error) {
	switch f.Type {
	case TypeBool:
		b, _ := v.(bool)
		return EncodeBool(b), nil
	case TypeInt, TypeLong:
		return EncodeLong(toInt64(v)), nil
	case TypeFloat:
		fv, _ := v.(float32)
		return EncodeFloat(fv), nil
	case TypeDouble:
		dv, _ := v.(float64)
		return EncodeDouble(dv), nil
	case TypeString:
		sv, _ := v.(string)
		return EncodeString(sv), nil
	case TypeBytes:
		bv, _ := v.([]byte)
		return EncodeBytes(bv), nil
	case TypeNull:
		return nil, nil
	case TypeEnum:
		idx, err := enumIndex(f.Symbols, v)
		if err != nil {
			return nil, err
		}
		return EncodeLong(int64(idx)), nil
	default:
		return nil, cdcerr.Corruption.New("unsupported field type")
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return 0
	}
}

func enumIndex(symbols []string, v interface{}) (int, error) {
	name, _ := v.(string)
	for i, s := range symbols {
		if s == name {
			return i, nil
		}
	}
	return 0, cdcerr.Corruption.New("unknown enum symbol: " + name)
}
