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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

func TestPackerRoundTrip(t *testing.T) {
	var p Packer
	p.EncodeInt8(-1)
	p.EncodeInt16(300)
	p.EncodeInt32(math.MinInt32)
	p.EncodeInt64(math.MinInt64)
	p.EncodeInt64(0)
	p.EncodeChar16('x')
	p.EncodeFloat32(1.5)
	p.EncodeFloat64(-2.25)
	p.EncodeString("a\x00b")
	p.EncodeNull()

	vals, err := Unpack(p.String())
	require.NoError(t, err)
	require.Equal(t, []any{int8(-1), int16(300), int32(math.MinInt32), int64(math.MinInt64), int64(0),
		uint16('x'), float32(1.5), float64(-2.25), "a\x00b", nil}, vals)

	_, err = Unpack("\x3b\x18\x01")
	require.Error(t, err)
	_, err = Unpack("\x7f")
	require.Error(t, err)
}

func TestPackerDistinguishesFields(t *testing.T) {
	enc := func(vals ...any) string {
		var p Packer
		for _, v := range vals {
			p.EncodeValue(v)
		}
		return p.String()
	}
	require.NotEqual(t, enc("ab", "c"), enc("a", "bc"))
	require.NotEqual(t, enc(int32(1)), enc(int64(1)))
	require.Equal(t, enc(0.0), enc(math.Copysign(0, -1)))
	require.Equal(t, enc([]byte("k")), enc("k"))
}

func TestCanonicalRef(t *testing.T) {
	require.Equal(t, any("k"), CanonicalRef([]byte("k")))
	require.Equal(t, RefHash("k"), RefHash(CanonicalRef([]byte("k"))))
	require.Equal(t, CanonicalRef(math.NaN()), CanonicalRef(-math.NaN()))
	// slices are not comparable and get keyed by their printed form
	require.Equal(t, CanonicalRef([]int{1, 2}), CanonicalRef([]int{1, 2}))
	require.Nil(t, CanonicalRef(nil))
}

func fill[K comparable](t *testing.T, r Reader[K], rows []int64, prev bool) []K {
	ctx := r.NewContext(len(rows))
	defer func() { require.NoError(t, ctx.Close()) }()
	dst := make([]K, len(rows))
	r.Fill(ctx, rows, prev, dst)
	return dst
}

func TestIntReader(t *testing.T) {
	src := column.NewArraySource[int64]()
	src.Set(0, 10)
	src.Set(1, types.NullInt64)
	src.CommitPrev()
	src.Set(0, 11)

	r := NewIntReader[int64](src)
	require.Equal(t, []types.T{types.T_int64}, r.Types())
	require.Equal(t, []int64{11, types.NullInt64}, fill(t, r, []int64{0, 1}, false))
	require.Equal(t, []int64{10}, fill(t, r, []int64{0}, true))
	require.True(t, r.IsNull(types.NullInt64))
	require.False(t, r.IsNull(0))

	k, err := r.FromValues(int64(11))
	require.NoError(t, err)
	require.Equal(t, int64(11), k)
	_, err = r.FromValues("11")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrKeyTypeMismatch))
	_, err = r.FromValues(int64(1), int64(2))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
}

func TestBooleanAndTimestampReaders(t *testing.T) {
	b := column.NewArraySource[types.Boolean]()
	b.Set(0, types.NullBoolean)
	b.Set(1, types.TrueBoolean)
	r := NewIntReader[int8](column.Physical(b).(column.TypedSource[int8]))
	require.Equal(t, []int8{-1, 1}, fill(t, r, []int64{0, 1}, false))
	require.True(t, r.IsNull(-1))
	k, err := r.FromValues(true)
	require.NoError(t, err)
	require.Equal(t, int8(1), k)

	ts := column.NewArraySource[types.Timestamp]()
	at := time.Unix(5, 6)
	ts.Set(0, types.TimestampOf(at))
	tr := NewIntReader[int64](column.Physical(ts).(column.TypedSource[int64]))
	require.Equal(t, []int64{at.UnixNano()}, fill(t, tr, []int64{0}, false))
	k64, err := tr.FromValues(at)
	require.NoError(t, err)
	require.Equal(t, at.UnixNano(), k64)
}

func TestFloatReaders(t *testing.T) {
	src := column.NewArraySource[float64]()
	src.Set(0, 0)
	src.Set(1, math.Copysign(0, -1))
	src.Set(2, math.NaN())
	src.Set(3, -math.NaN())
	r := NewFloat64Reader(src)
	keys := fill(t, r, []int64{0, 1, 2, 3}, false)
	require.Equal(t, keys[0], keys[1])
	require.Equal(t, keys[2], keys[3])
	require.NotEqual(t, keys[0], keys[2])
	require.Equal(t, r.Hash(keys[0]), r.Hash(keys[1]))
	require.True(t, math.IsNaN(r.ToValues(keys[2])[0].(float64)))

	f32 := column.NewArraySource[float32]()
	f32.Set(0, types.NullFloat32)
	r32 := NewFloat32Reader(f32)
	require.True(t, r32.IsNull(fill(t, r32, []int64{0}, false)[0]))
}

func TestRefReader(t *testing.T) {
	src := column.NewArraySource[any]()
	src.Set(0, []byte("x"))
	src.Set(1, "x")
	src.Set(2, nil)
	r := NewRefReader(src)
	keys := fill(t, r, []int64{0, 1, 2}, false)
	require.Equal(t, keys[0], keys[1])
	require.True(t, r.IsNull(keys[2]))
	k, err := r.FromValues([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, keys[0], k)
}

func TestTupleReaders(t *testing.T) {
	a := column.NewArraySource[int32]()
	b := column.NewArraySource[float32]()
	c := column.NewArraySource[uint16]()
	a.Set(0, -7)
	b.Set(0, 2.5)
	c.Set(0, 'q')
	a.Set(1, types.NullInt32)
	b.Set(1, 0)
	c.Set(1, 'r')

	r2, err := NewTuple2Reader(a, b)
	require.NoError(t, err)
	require.Equal(t, []types.T{types.T_int32, types.T_float32}, r2.Types())
	keys := fill(t, r2, []int64{0, 1}, false)
	require.Equal(t, []any{int32(-7), float32(2.5)}, r2.ToValues(keys[0]))
	require.False(t, r2.IsNull(keys[0]))
	require.True(t, r2.IsNull(keys[1]))

	k, err := r2.FromValues(int32(-7), float32(2.5))
	require.NoError(t, err)
	require.Equal(t, keys[0], k)
	require.Equal(t, r2.Hash(keys[0]), r2.Hash(k))
	swapped, err := NewTuple2Reader(b, a)
	require.NoError(t, err)
	sk, err := swapped.FromValues(float32(2.5), int32(-7))
	require.NoError(t, err)
	require.NotEqual(t, r2.Hash(k), swapped.Hash(sk))

	r3, err := NewTuple3Reader(a, b, c)
	require.NoError(t, err)
	keys3 := fill(t, r3, []int64{0}, false)
	require.Equal(t, []any{int32(-7), float32(2.5), uint16('q')}, r3.ToValues(keys3[0]))

	s := column.NewArraySource[string]()
	_, err = NewTuple2Reader(a, s)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrUnsupportedKeyTypeCombination))
	require.False(t, IsPrimitive(s))
	require.True(t, IsPrimitive(a))
}

func TestBoxedReader(t *testing.T) {
	a := column.NewArraySource[string]()
	b := column.NewArraySource[int64]()
	a.Set(0, "k")
	b.Set(0, 1)
	a.Set(1, "k")
	b.Set(1, types.NullInt64)
	r := NewBoxedReader(a, b)
	require.Equal(t, []types.T{types.T_ref, types.T_int64}, r.Types())

	keys := fill(t, r, []int64{0, 1}, false)
	require.NotEqual(t, keys[0], keys[1])
	require.Equal(t, []any{"k", int64(1)}, r.ToValues(keys[0]))
	require.True(t, r.IsNull(keys[1]))
	require.False(t, r.IsNull(keys[0]))

	k, err := r.FromValues([]byte("k"), int64(1))
	require.NoError(t, err)
	require.Equal(t, keys[0], k)
	require.Equal(t, r.Hash(keys[0]), r.Hash(k))
}

func TestNullKeyValues(t *testing.T) {
	i8 := column.NewArraySource[int8]()
	i8.Set(0, -1)
	i8.Set(1, types.NullInt8)
	checkNullKey(t, NewIntReader[int8](i8))

	i16 := column.NewArraySource[int16]()
	i16.Set(0, -1)
	i16.Set(1, types.NullInt16)
	checkNullKey(t, NewIntReader[int16](i16))

	i32 := column.NewArraySource[int32]()
	i32.Set(0, -1)
	i32.Set(1, types.NullInt32)
	checkNullKey(t, NewIntReader[int32](i32))

	i64 := column.NewArraySource[int64]()
	i64.Set(0, -1)
	i64.Set(1, types.NullInt64)
	checkNullKey(t, NewIntReader[int64](i64))

	c16 := column.NewArraySource[uint16]()
	c16.Set(0, 'a')
	c16.Set(1, types.NullChar16)
	checkNullKey(t, NewIntReader[uint16](c16))

	f32 := column.NewArraySource[float32]()
	f32.Set(0, -1)
	f32.Set(1, types.NullFloat32)
	checkNullKey(t, NewFloat32Reader(f32))

	f64 := column.NewArraySource[float64]()
	f64.Set(0, -1)
	f64.Set(1, types.NullFloat64)
	checkNullKey(t, NewFloat64Reader(f64))

	// only booleans keep their null at -1
	b := column.NewArraySource[types.Boolean]()
	b.Set(0, types.TrueBoolean)
	b.Set(1, types.NullBoolean)
	br := NewIntReader[int8](column.Physical(b).(column.TypedSource[int8]))
	checkNullKey(t, br)
	k, err := br.FromValues(nil)
	require.NoError(t, err)
	require.Equal(t, int8(-1), k)

	ts := column.NewArraySource[types.Timestamp]()
	ts.Set(0, types.TimestampOf(time.Unix(1, 0)))
	ts.Set(1, types.NullTimestamp)
	checkNullKey(t, NewIntReader[int64](column.Physical(ts).(column.TypedSource[int64])))

	r2, err := NewTuple2Reader(i8, f64)
	require.NoError(t, err)
	checkNullKey(t, r2)

	s := column.NewArraySource[string]()
	s.Set(0, "k")
	s.Set(1, "k")
	checkNullKey(t, NewBoxedReader(s, i16))
	_, err = NewBoxedReader(s, i16).FromValues(nil, nil)
	require.NoError(t, err)
}

// checkNullKey expects row 1 of every key column of r to hold its null and
// row 0 a value, and nil key values to find row 1.
func checkNullKey[K comparable](t *testing.T, r Reader[K]) {
	keys := fill(t, r, []int64{0, 1}, false)
	require.True(t, r.IsNull(keys[1]), "%v", r.Types())
	values := make([]any, len(r.Types()))
	for i, typ := range r.Types() {
		if typ == types.T_ref {
			values[i] = "k"
		}
	}
	k, err := r.FromValues(values...)
	require.NoError(t, err, "%v", r.Types())
	require.Equal(t, keys[1], k, "%v", r.Types())
	require.NotEqual(t, keys[0], k, "%v", r.Types())
}

func TestContextRecyclesChunks(t *testing.T) {
	src := column.NewArraySource[int64]()
	src.Set(0, 1)
	src.Set(1, 2)
	r := NewIntReader[int64](src)

	ctx := r.NewContext(4)
	require.Equal(t, 4, chunk.As[int64](ctx.scratch[0]).Capacity())
	dst := make([]int64, 2)
	r.Fill(ctx, []int64{0, 1}, false, dst)
	require.Equal(t, []int64{1, 2}, dst)
	require.NoError(t, ctx.Close())
	require.Nil(t, ctx.scratch[0])
	require.Empty(t, ctx.release)

	// a recycled chunk starts empty
	ctx = r.NewContext(4)
	require.Equal(t, 0, chunk.As[int64](ctx.scratch[0]).Size())
	require.NoError(t, ctx.Close())
	require.Len(t, r.(*single[int64, int64]).pools.byCap, 1)

	r2, err := NewTuple2Reader(src, src)
	require.NoError(t, err)
	keys := fill(t, r2, []int64{0, 1}, false)
	require.Equal(t, []any{int64(2), int64(2)}, r2.ToValues(keys[1]))
	require.Panics(t, func() { chunk.As[int32](chunk.New[int64](1)) })
}
