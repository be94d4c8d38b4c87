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

package column

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

func TestArraySourcePrev(t *testing.T) {
	s := NewArraySource[int64]()
	require.Equal(t, types.T_int64, s.Type())
	s.Set(0, 10)
	s.Set(1, 20)
	s.CommitPrev()

	s.Set(1, 21)
	s.Set(2, 30)
	s.Remove(0)
	require.Equal(t, int64(21), s.Get(1))
	require.Equal(t, int64(20), s.GetPrev(1))
	require.Equal(t, int64(10), s.GetPrev(0))
	require.Panics(t, func() { s.Get(0) })
	require.Panics(t, func() { s.GetPrev(2) })

	s.CommitPrev()
	require.Equal(t, int64(30), s.GetPrev(2))
	require.Equal(t, 2, s.Len())
}

func TestArraySourceFill(t *testing.T) {
	s := NewArraySource[int32]()
	for i := int64(0); i < 5; i++ {
		s.Set(i, int32(i*i))
	}
	ctx := s.MakeFillContext(4)
	dst := chunk.New[int32](4)
	s.FillChunk(ctx, dst, []int64{4, 1, 2})
	require.Equal(t, []int32{16, 1, 4}, dst.Values())

	anyDst := chunk.New[any](4)
	s.FillPrevAnyChunk(ctx, anyDst, []int64{3})
	require.Equal(t, []any{int32(9)}, anyDst.Values())

	require.Panics(t, func() { s.FillChunk(ctx, dst, []int64{0, 1, 2, 3, 4}) })
	require.NoError(t, ctx.Close())
	require.Error(t, ctx.Close())
}

func TestArraySourceShift(t *testing.T) {
	s := NewArraySource[string]()
	require.Equal(t, types.T_ref, s.Type())
	s.Set(0, "a")
	s.Set(1, "b")
	s.Set(5, "c")
	s.CommitPrev()

	sd := rowset.NewShiftData()
	require.NoError(t, sd.Add(0, 1, 1))
	require.NoError(t, sd.Add(5, 5, -2))
	s.Shift(sd)
	require.Equal(t, "a", s.Get(1))
	require.Equal(t, "b", s.Get(2))
	require.Equal(t, "c", s.Get(3))
	require.Equal(t, "a", s.GetPrev(0))
	require.Equal(t, "c", s.GetPrev(5))
}

func TestArraySourceSavesTouchedRowsOnly(t *testing.T) {
	s := NewArraySource[int64]()
	for i := int64(0); i < 1000; i++ {
		s.Set(i, i)
	}
	s.CommitPrev()
	require.Empty(t, s.undo)

	s.Set(3, 33)
	s.Set(3, 333)
	s.Remove(4)
	s.Set(2000, 1)
	require.Len(t, s.undo, 3)
	require.Equal(t, int64(3), s.GetPrev(3))
	require.Equal(t, int64(4), s.GetPrev(4))
	require.Panics(t, func() { s.GetPrev(2000) })

	// only rows inside the range move, the row at the target is saved too
	sd := rowset.NewShiftData()
	require.NoError(t, sd.Add(10, 11, 1000))
	s.Shift(sd)
	require.Len(t, s.undo, 7)
	require.Equal(t, int64(10), s.Get(1010))
	require.Equal(t, int64(11), s.Get(1011))
	require.Panics(t, func() { s.Get(10) })
	require.Equal(t, int64(10), s.GetPrev(10))
	require.Panics(t, func() { s.GetPrev(1010) })
	require.Equal(t, 1000, s.Len())

	ctx := s.MakeFillContext(3)
	dst := chunk.New[int64](3)
	s.FillPrevChunk(ctx, dst, []int64{3, 10, 999})
	require.Equal(t, []int64{3, 10, 999}, dst.Values())
	s.FillChunk(ctx, dst, []int64{3, 1011, 999})
	require.Equal(t, []int64{333, 11, 999}, dst.Values())
	require.NoError(t, ctx.Close())

	s.CommitPrev()
	require.Empty(t, s.undo)
	require.Equal(t, int64(333), s.GetPrev(3))
	require.Equal(t, int64(11), s.GetPrev(1011))
}

func TestReinterpret(t *testing.T) {
	b := NewArraySource[types.Boolean]()
	b.Set(0, types.TrueBoolean)
	b.Set(1, types.NullBoolean)
	b.Set(2, types.FalseBoolean)

	p, ok := Physical(b).(TypedSource[int8])
	require.True(t, ok)
	require.Equal(t, types.T_int8, p.Type())
	require.Equal(t, int8(-1), p.Get(1))

	ctx := p.MakeFillContext(3)
	defer func() { require.NoError(t, ctx.Close()) }()
	dst := chunk.New[int8](3)
	p.FillChunk(ctx, dst, []int64{0, 1, 2})
	require.Equal(t, []int8{1, -1, 0}, dst.Values())

	ts := NewArraySource[types.Timestamp]()
	ts.Set(0, types.NullTimestamp)
	ts.Set(1, types.TimestampOf(time.Unix(0, 42)))
	tp := Physical(ts).(TypedSource[int64])
	require.Equal(t, types.T_int64, tp.Type())
	require.Equal(t, int64(math.MinInt64), tp.Get(0))
	require.Equal(t, any(int64(42)), tp.GetAny(1))

	plain := NewArraySource[float64]()
	require.Same(t, plain, Physical(plain))
}
