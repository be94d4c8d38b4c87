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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBooleanAsByte(t *testing.T) {
	require.Equal(t, int8(-1), BooleanAsByte(NullBoolean))
	require.Equal(t, int8(0), BooleanAsByte(FalseBoolean))
	require.Equal(t, int8(1), BooleanAsByte(TrueBoolean))
	for _, b := range []Boolean{NullBoolean, FalseBoolean, TrueBoolean} {
		require.Equal(t, b, ByteAsBoolean(BooleanAsByte(b)))
	}
}

func TestEpochNanos(t *testing.T) {
	require.Equal(t, int64(math.MinInt64), EpochNanos(NullTimestamp))
	ts := TimestampOf(time.Unix(1700000000, 123).UTC())
	require.Equal(t, int64(1700000000000000123), EpochNanos(ts))
	require.Equal(t, ts, EpochNanosToTimestamp(EpochNanos(ts)))
	require.Equal(t, NullTimestamp, EpochNanosToTimestamp(NullInt64))
}

func TestCanonicalFloat(t *testing.T) {
	negZero := math.Copysign(0, -1)
	require.Equal(t, CanonicalFloat64(0), CanonicalFloat64(negZero))
	require.Equal(t, CanonicalFloat64(math.NaN()), CanonicalFloat64(-math.NaN()))
	require.NotEqual(t, CanonicalFloat64(1), CanonicalFloat64(-1))
	require.Equal(t, CanonicalFloat32(0), CanonicalFloat32(float32(negZero)))
	nan32 := float32(math.NaN())
	require.Equal(t, CanonicalFloat32(nan32), CanonicalFloat32(-nan32))
}

func TestParseT(t *testing.T) {
	cases := map[string]T{
		"bool":      T_int8,
		"short":     T_int16,
		"int":       T_int32,
		"timestamp": T_int64,
		"float":     T_float32,
		"double":    T_float64,
		"char":      T_char16,
		"string":    T_ref,
	}
	for name, want := range cases {
		got, ok := ParseT(name)
		require.True(t, ok, name)
		require.Equal(t, want, got, name)
	}
	_, ok := ParseT("decimal")
	require.False(t, ok)
	require.Equal(t, 8, T_int64.TypeSize())
	require.Equal(t, 0, T_ref.TypeSize())
	require.Equal(t, "char16", T_char16.String())
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("int16", "-12")
	require.NoError(t, err)
	require.Equal(t, int16(-12), v)

	v, err = ParseValue("long", "null")
	require.NoError(t, err)
	require.Equal(t, NullInt64, v)
	require.True(t, IsNull(v))

	v, err = ParseValue("bool", "TRUE")
	require.NoError(t, err)
	require.Equal(t, TrueBoolean, v)

	v, err = ParseValue("char", "x")
	require.NoError(t, err)
	require.Equal(t, uint16('x'), v)

	v, err = ParseValue("timestamp", "2024-01-02T03:04:05Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano(), EpochNanos(v.(Timestamp)))

	_, err = ParseValue("int8", "300")
	require.Error(t, err)
	_, err = ParseValue("decimal", "1")
	require.Error(t, err)
}
