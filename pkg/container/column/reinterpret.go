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
	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// Reinterpret presents a logical column of L as a physical column of P.
type Reinterpret[L, P any] struct {
	src  TypedSource[L]
	typ  types.T
	conv func(L) P
}

func NewReinterpret[L, P any](src TypedSource[L], typ types.T, conv func(L) P) *Reinterpret[L, P] {
	return &Reinterpret[L, P]{src: src, typ: typ, conv: conv}
}

// BooleanAsInt8 reads booleans as -1 (null), 0 or 1.
func BooleanAsInt8(src TypedSource[types.Boolean]) *Reinterpret[types.Boolean, int8] {
	return NewReinterpret(src, types.T_int8, types.BooleanAsByte)
}

// TimestampAsInt64 reads timestamps as epoch nanoseconds.
func TimestampAsInt64(src TypedSource[types.Timestamp]) *Reinterpret[types.Timestamp, int64] {
	return NewReinterpret(src, types.T_int64, types.EpochNanos)
}

// Physical returns src as seen by hashing: logical booleans and timestamps
// are reinterpreted, everything else is returned unchanged.
func Physical(src Source) Source {
	switch s := src.(type) {
	case TypedSource[types.Boolean]:
		return BooleanAsInt8(s)
	case TypedSource[types.Timestamp]:
		return TimestampAsInt64(s)
	}
	return src
}

// Original unwraps a reinterpreted source.
func (r *Reinterpret[L, P]) Original() TypedSource[L] {
	return r.src
}

func (r *Reinterpret[L, P]) Type() types.T {
	return r.typ
}

func (r *Reinterpret[L, P]) Get(rowKey int64) P {
	return r.conv(r.src.Get(rowKey))
}

func (r *Reinterpret[L, P]) GetPrev(rowKey int64) P {
	return r.conv(r.src.GetPrev(rowKey))
}

func (r *Reinterpret[L, P]) GetAny(rowKey int64) any {
	return r.Get(rowKey)
}

func (r *Reinterpret[L, P]) GetPrevAny(rowKey int64) any {
	return r.GetPrev(rowKey)
}

type reinterpretContext[L any] struct {
	inner   FillContext
	scratch *chunk.Chunk[L]
}

func (fc *reinterpretContext[L]) Capacity() int {
	return fc.scratch.Capacity()
}

func (fc *reinterpretContext[L]) Close() error {
	return fc.inner.Close()
}

func (r *Reinterpret[L, P]) MakeFillContext(capacity int) FillContext {
	return &reinterpretContext[L]{
		inner:   r.src.MakeFillContext(capacity),
		scratch: chunk.New[L](capacity),
	}
}

func (r *Reinterpret[L, P]) FillChunk(ctx FillContext, dst *chunk.Chunk[P], rows []int64) {
	r.fill(ctx, dst, rows, false)
}

func (r *Reinterpret[L, P]) FillPrevChunk(ctx FillContext, dst *chunk.Chunk[P], rows []int64) {
	r.fill(ctx, dst, rows, true)
}

func (r *Reinterpret[L, P]) fill(ctx FillContext, dst *chunk.Chunk[P], rows []int64, prev bool) {
	checkFill(ctx, dst.Capacity(), len(rows))
	fc := ctx.(*reinterpretContext[L])
	if prev {
		r.src.FillPrevChunk(fc.inner, fc.scratch, rows)
	} else {
		r.src.FillChunk(fc.inner, fc.scratch, rows)
	}
	out := dst.Raw()
	for i, v := range fc.scratch.Values() {
		out[i] = r.conv(v)
	}
	dst.SetSize(len(rows))
}

func (r *Reinterpret[L, P]) FillAnyChunk(ctx FillContext, dst *chunk.Chunk[any], rows []int64) {
	r.fillAny(ctx, dst, rows, false)
}

func (r *Reinterpret[L, P]) FillPrevAnyChunk(ctx FillContext, dst *chunk.Chunk[any], rows []int64) {
	r.fillAny(ctx, dst, rows, true)
}

func (r *Reinterpret[L, P]) fillAny(ctx FillContext, dst *chunk.Chunk[any], rows []int64, prev bool) {
	checkFill(ctx, dst.Capacity(), len(rows))
	fc := ctx.(*reinterpretContext[L])
	if prev {
		r.src.FillPrevChunk(fc.inner, fc.scratch, rows)
	} else {
		r.src.FillChunk(fc.inner, fc.scratch, rows)
	}
	out := dst.Raw()
	for i, v := range fc.scratch.Values() {
		out[i] = r.conv(v)
	}
	dst.SetSize(len(rows))
}
