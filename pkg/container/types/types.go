// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"math"
	"time"
)

// T is the physical type a key column is hashed and compared as.
// The user visible logical type may differ: booleans are stored as
// T_int8 and timestamps as T_int64.
type T uint8

const (
	T_any T = iota

	T_int8
	T_int16
	T_int32
	T_int64
	T_float32
	T_float64
	T_char16
	T_ref
)

var typeNames = [...]string{
	T_any:     "any",
	T_int8:    "int8",
	T_int16:   "int16",
	T_int32:   "int32",
	T_int64:   "int64",
	T_float32: "float32",
	T_float64: "float64",
	T_char16:  "char16",
	T_ref:     "ref",
}

func (t T) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// TypeSize is the width of one value in bytes, 0 for references.
func (t T) TypeSize() int {
	switch t {
	case T_int8:
		return 1
	case T_int16, T_char16:
		return 2
	case T_int32, T_float32:
		return 4
	case T_int64, T_float64:
		return 8
	}
	return 0
}

func (t T) IsFixedLen() bool {
	return t.TypeSize() > 0
}

func (t T) IsFloat() bool {
	return t == T_float32 || t == T_float64
}

// ParseT maps a type name, logical or physical, to its physical type.
func ParseT(name string) (T, bool) {
	switch name {
	case "int8", "byte", "bool", "boolean":
		return T_int8, true
	case "int16", "short":
		return T_int16, true
	case "int32", "int":
		return T_int32, true
	case "int64", "long", "timestamp", "instant":
		return T_int64, true
	case "float32", "float":
		return T_float32, true
	case "float64", "double":
		return T_float64, true
	case "char16", "char":
		return T_char16, true
	case "ref", "string", "object":
		return T_ref, true
	}
	return T_any, false
}

// Null sentinels. A null participates in key equality like any other value.
const (
	NullInt8    int8    = math.MinInt8
	NullInt16   int16   = math.MinInt16
	NullInt32   int32   = math.MinInt32
	NullInt64   int64   = math.MinInt64
	NullChar16  uint16  = math.MaxUint16
	NullFloat32 float32 = -math.MaxFloat32
	NullFloat64 float64 = -math.MaxFloat64

	// Booleans are reinterpreted as bytes with their own three valued encoding.
	BooleanNullByte  int8 = -1
	BooleanFalseByte int8 = 0
	BooleanTrueByte  int8 = 1
)

// Boolean is a nullable boolean as held by logical boolean columns.
type Boolean struct {
	Value bool
	Valid bool
}

var (
	NullBoolean  = Boolean{}
	TrueBoolean  = Boolean{Value: true, Valid: true}
	FalseBoolean = Boolean{Value: false, Valid: true}
)

func BooleanOf(b bool) Boolean {
	return Boolean{Value: b, Valid: true}
}

// BooleanAsByte encodes null as -1, false as 0 and true as 1.
func BooleanAsByte(b Boolean) int8 {
	if !b.Valid {
		return BooleanNullByte
	}
	if b.Value {
		return BooleanTrueByte
	}
	return BooleanFalseByte
}

func ByteAsBoolean(v int8) Boolean {
	switch v {
	case BooleanFalseByte:
		return FalseBoolean
	case BooleanTrueByte:
		return TrueBoolean
	}
	return NullBoolean
}

// Timestamp is a nullable instant as held by logical timestamp columns.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

var NullTimestamp = Timestamp{}

func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Time: t, Valid: true}
}

// EpochNanos is the physical form of a timestamp, null maps to NullInt64.
func EpochNanos(ts Timestamp) int64 {
	if !ts.Valid {
		return NullInt64
	}
	return ts.Time.UnixNano()
}

func EpochNanosToTimestamp(nanos int64) Timestamp {
	if nanos == NullInt64 {
		return NullTimestamp
	}
	return TimestampOf(time.Unix(0, nanos).UTC())
}

// CharOf returns the char16 value of r, runes outside the basic
// multilingual plane cannot be represented and map to null.
func CharOf(r rune) uint16 {
	if r < 0 || r >= math.MaxUint16 {
		return NullChar16
	}
	return uint16(r)
}

// CanonicalFloat32 returns the bits used for hashing and equality: -0 and
// +0 are one key, every NaN is one key.
func CanonicalFloat32(v float32) uint32 {
	if v == 0 {
		return 0
	}
	if v != v {
		return 0x7fc00000
	}
	return math.Float32bits(v)
}

func CanonicalFloat64(v float64) uint64 {
	if v == 0 {
		return 0
	}
	if v != v {
		return 0x7ff8000000000000
	}
	return math.Float64bits(v)
}

// IsNull reports whether v holds the null sentinel of its physical type.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case int8:
		return x == NullInt8
	case int16:
		return x == NullInt16
	case int32:
		return x == NullInt32
	case int64:
		return x == NullInt64
	case uint16:
		return x == NullChar16
	case float32:
		return x == NullFloat32
	case float64:
		return x == NullFloat64
	case Boolean:
		return !x.Valid
	case Timestamp:
		return !x.Valid
	}
	return false
}

// TypeOf returns the physical type of a Go value as stored in a chunk.
func TypeOf(v any) T {
	switch v.(type) {
	case int8:
		return T_int8
	case int16:
		return T_int16
	case int32:
		return T_int32
	case int64:
		return T_int64
	case float32:
		return T_float32
	case float64:
		return T_float64
	case uint16:
		return T_char16
	}
	return T_ref
}
