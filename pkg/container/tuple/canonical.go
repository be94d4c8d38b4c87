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

package tuple

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/hashtable"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// compositeSeed starts every composite hash.
const compositeSeed uint64 = 1

// nilRefHash is the hash of the null reference.
const nilRefHash uint64 = 0x9ae16a3b2f90404f

// Floats held by reference columns are keyed by their canonical bits so
// NaN keys compare equal.
type (
	refFloat32 uint32
	refFloat64 uint64
)

// RefValue undoes the float keying of CanonicalRef.
func RefValue(k any) any {
	switch x := k.(type) {
	case refFloat32:
		return math.Float32frombits(uint32(x))
	case refFloat64:
		return math.Float64frombits(uint64(x))
	}
	return k
}

// CanonicalRef returns the value reference keys compare by. Byte slices
// compare as strings, values Go cannot compare are keyed by their packed
// printed form.
func CanonicalRef(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case float32:
		return refFloat32(types.CanonicalFloat32(x))
	case float64:
		return refFloat64(types.CanonicalFloat64(x))
	}
	if !reflect.TypeOf(v).Comparable() {
		var p Packer
		p.EncodeValue(v)
		return p.String()
	}
	return v
}

// RefHash is a stable hash of a canonical reference value.
func RefHash(v any) uint64 {
	switch x := v.(type) {
	case nil:
		return nilRefHash
	case string:
		return xxhash.Sum64String(x)
	case int8:
		return hashtable.Int64Hash(uint64(x))
	case int16:
		return hashtable.Int64Hash(uint64(x))
	case int32:
		return hashtable.Int64Hash(uint64(x))
	case int64:
		return hashtable.Int64Hash(uint64(x))
	case int:
		return hashtable.Int64Hash(uint64(x))
	case uint16:
		return hashtable.Int64Hash(uint64(x))
	case bool:
		if x {
			return hashtable.Int64Hash(1)
		}
		return hashtable.Int64Hash(0)
	case float32:
		return hashtable.Int64Hash(uint64(types.CanonicalFloat32(x)))
	case float64:
		return hashtable.Int64Hash(types.CanonicalFloat64(x))
	case refFloat32:
		return hashtable.Int64Hash(uint64(x))
	case refFloat64:
		return hashtable.Int64Hash(uint64(x))
	}
	return xxhash.Sum64String(fmt.Sprintf("%T:%v", v, v))
}

// StringHash hashes a packed key.
func StringHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// PhysicalValue converts a user supplied key value into the Go value a
// column of typ holds after canonical reinterpretation.
func PhysicalValue(typ types.T, v any) (any, bool) {
	switch typ {
	case types.T_int8:
		switch x := v.(type) {
		case int8:
			return x, true
		case bool:
			return types.BooleanAsByte(types.BooleanOf(x)), true
		case types.Boolean:
			return types.BooleanAsByte(x), true
		}
	case types.T_int16:
		if x, ok := v.(int16); ok {
			return x, true
		}
	case types.T_int32:
		switch x := v.(type) {
		case int32:
			return x, true
		case int:
			if x >= math.MinInt32 && x <= math.MaxInt32 {
				return int32(x), true
			}
		}
	case types.T_int64:
		switch x := v.(type) {
		case int64:
			return x, true
		case int:
			return int64(x), true
		case types.Timestamp:
			return types.EpochNanos(x), true
		case time.Time:
			return x.UnixNano(), true
		}
	case types.T_char16:
		switch x := v.(type) {
		case uint16:
			return x, true
		case rune:
			return types.CharOf(x), true
		}
	case types.T_float32:
		if x, ok := v.(float32); ok {
			return x, true
		}
	case types.T_float64:
		if x, ok := v.(float64); ok {
			return x, true
		}
	case types.T_ref:
		return CanonicalRef(v), true
	}
	return nil, false
}

// PhysicalValueOf is PhysicalValue for a key read from src. A nil value
// stands for the null of src.
func PhysicalValueOf(src column.Source, v any) (any, bool) {
	if v == nil && src.Type() != types.T_ref {
		if null := nullOf(src); null != nil {
			return null, true
		}
		return nil, false
	}
	return PhysicalValue(src.Type(), v)
}

func mismatch(col int, typ types.T, v any) error {
	return moerr.NewKeyTypeMismatch(context.TODO(), col, fmt.Sprintf("%T", v), typ.String())
}
