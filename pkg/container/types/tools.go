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
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
)

func ParseBool(s string) (bool, error) {
	// try to parse as a bool, we treat TuRe as true, therefore ToLower.
	v, err := strconv.ParseBool(strings.ToLower(s))
	if err == nil {
		return v, nil
	}

	// try to parse as a number. We treat 0 as false, and other numbers as true.
	num, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return num != 0.0, nil
	}

	return false, moerr.NewInvalidInput(context.TODO(), "'%s' is not a valid bool expression", s)
}

// ParseValue converts the textual form of a value into the Go value a column
// of the given logical type name stores. "null" yields the null of that type.
func ParseValue(typeName string, s string) (any, error) {
	isNull := strings.EqualFold(s, "null")
	switch typeName {
	case "bool", "boolean":
		if isNull {
			return NullBoolean, nil
		}
		b, err := ParseBool(s)
		if err != nil {
			return nil, err
		}
		return BooleanOf(b), nil
	case "timestamp", "instant":
		if isNull {
			return NullTimestamp, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, moerr.NewInvalidInput(context.TODO(), "'%s' is not a valid timestamp", s)
		}
		return TimestampOf(t), nil
	case "char", "char16":
		if isNull {
			return NullChar16, nil
		}
		r, size := utf8.DecodeRuneInString(s)
		if size != len(s) || r == utf8.RuneError {
			return nil, moerr.NewInvalidInput(context.TODO(), "'%s' is not a single char", s)
		}
		return CharOf(r), nil
	case "string", "ref", "object":
		if isNull {
			return nil, nil
		}
		return s, nil
	}

	typ, ok := ParseT(typeName)
	if !ok {
		return nil, moerr.NewInvalidInput(context.TODO(), "unknown type %s", typeName)
	}
	if isNull {
		return NullOf(typ), nil
	}
	switch typ {
	case T_int8, T_int16, T_int32, T_int64:
		v, err := strconv.ParseInt(s, 10, typ.TypeSize()*8)
		if err != nil {
			return nil, moerr.NewInvalidInput(context.TODO(), "'%s' is not a valid %s", s, typ)
		}
		return CastInt(typ, v), nil
	case T_float32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, moerr.NewInvalidInput(context.TODO(), "'%s' is not a valid %s", s, typ)
		}
		return float32(v), nil
	case T_float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, moerr.NewInvalidInput(context.TODO(), "'%s' is not a valid %s", s, typ)
		}
		return v, nil
	}
	return nil, moerr.NewInvalidInput(context.TODO(), "cannot parse %s values", typ)
}

// NullOf returns the null sentinel of a physical type.
func NullOf(typ T) any {
	switch typ {
	case T_int8:
		return NullInt8
	case T_int16:
		return NullInt16
	case T_int32:
		return NullInt32
	case T_int64:
		return NullInt64
	case T_float32:
		return NullFloat32
	case T_float64:
		return NullFloat64
	case T_char16:
		return NullChar16
	}
	return nil
}

// CastInt narrows v to the Go integer type backing typ.
func CastInt(typ T, v int64) any {
	switch typ {
	case T_int8:
		return int8(v)
	case T_int16:
		return int16(v)
	case T_int32:
		return int32(v)
	}
	return v
}
