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
	"math"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/hashtable"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// field reads one primitive key column as canonical 64 bit patterns.
type field interface {
	source() column.Source
	acquire(ctx *Context, i int, capacity int)
	fill(fc column.FillContext, scratch chunk.Untyped, rows []int64, prev bool, dst []uint64)
	toBits(v any) (uint64, bool)
	toValue(bits uint64) any
	nullBits() uint64
}

type typedField[T any] struct {
	src   column.TypedSource[T]
	bits  func(T) uint64
	back  func(uint64) T
	null  uint64
	pools chunkPools[T]
}

func (f *typedField[T]) source() column.Source {
	return f.src
}

func (f *typedField[T]) acquire(ctx *Context, i int, capacity int) {
	f.pools.acquire(ctx, i, capacity)
}

func (f *typedField[T]) fill(fc column.FillContext, scratch chunk.Untyped, rows []int64, prev bool, dst []uint64) {
	c := chunk.As[T](scratch)
	if prev {
		f.src.FillPrevChunk(fc, c, rows)
	} else {
		f.src.FillChunk(fc, c, rows)
	}
	for i, v := range c.Values() {
		dst[i] = f.bits(v)
	}
}

func (f *typedField[T]) toBits(v any) (uint64, bool) {
	pv, ok := PhysicalValueOf(f.src, v)
	if !ok {
		return 0, false
	}
	x, ok := pv.(T)
	if !ok {
		return 0, false
	}
	return f.bits(x), true
}

func (f *typedField[T]) toValue(bits uint64) any {
	return f.back(bits)
}

func (f *typedField[T]) nullBits() uint64 {
	return f.null
}

func newTypedField[T any](src column.TypedSource[T], bits func(T) uint64, back func(uint64) T) *typedField[T] {
	f := &typedField[T]{src: src, bits: bits, back: back}
	if null, ok := nullOf(src).(T); ok {
		f.null = bits(null)
	}
	return f
}

// newField returns nil for sources that are not primitive.
func newField(src column.Source) field {
	switch s := src.(type) {
	case column.TypedSource[int8]:
		return newTypedField(s, func(v int8) uint64 { return uint64(v) }, func(b uint64) int8 { return int8(b) })
	case column.TypedSource[int16]:
		return newTypedField(s, func(v int16) uint64 { return uint64(v) }, func(b uint64) int16 { return int16(b) })
	case column.TypedSource[int32]:
		return newTypedField(s, func(v int32) uint64 { return uint64(v) }, func(b uint64) int32 { return int32(b) })
	case column.TypedSource[int64]:
		return newTypedField(s, func(v int64) uint64 { return uint64(v) }, func(b uint64) int64 { return int64(b) })
	case column.TypedSource[uint16]:
		return newTypedField(s, func(v uint16) uint64 { return uint64(v) }, func(b uint64) uint16 { return uint16(b) })
	case column.TypedSource[float32]:
		return newTypedField(s,
			func(v float32) uint64 { return uint64(types.CanonicalFloat32(v)) },
			func(b uint64) float32 { return math.Float32frombits(uint32(b)) })
	case column.TypedSource[float64]:
		return newTypedField(s, types.CanonicalFloat64, math.Float64frombits)
	}
	return nil
}

// IsPrimitive reports whether src can be a field of a fixed arity key.
func IsPrimitive(src column.Source) bool {
	return src.Type() != types.T_ref && newField(src) != nil
}

type fields struct {
	fs []field
}

func newFields(srcs []column.Source) (*fields, error) {
	f := &fields{fs: make([]field, len(srcs))}
	for i, src := range srcs {
		if f.fs[i] = newField(src); f.fs[i] == nil {
			names := make([]string, len(srcs))
			for j, s := range srcs {
				names[j] = s.Type().String()
			}
			return nil, moerr.NewUnsupportedKeyTypeCombination(context.TODO(), names)
		}
	}
	return f, nil
}

func (f *fields) Types() []types.T {
	res := make([]types.T, len(f.fs))
	for i, fd := range f.fs {
		res[i] = fd.source().Type()
	}
	return res
}

func (f *fields) NewContext(capacity int) *Context {
	srcs := make([]column.Source, len(f.fs))
	for i, fd := range f.fs {
		srcs[i] = fd.source()
	}
	ctx := newContext(srcs, capacity)
	ctx.cols = make([][]uint64, len(f.fs))
	for i, fd := range f.fs {
		fd.acquire(ctx, i, capacity)
		ctx.cols[i] = make([]uint64, capacity)
	}
	return ctx
}

func (f *fields) fillCols(ctx *Context, rows []int64, prev bool) {
	for i, fd := range f.fs {
		fd.fill(ctx.fills[i], ctx.scratch[i], rows, prev, ctx.cols[i][:len(rows)])
	}
}

func (f *fields) hash(bits []uint64) uint64 {
	h := compositeSeed
	for _, b := range bits {
		h = hashtable.CombineHash(h, hashtable.Int64Hash(b))
	}
	return h
}

func (f *fields) isNull(bits []uint64) bool {
	for i, fd := range f.fs {
		if bits[i] == fd.nullBits() {
			return true
		}
	}
	return false
}

func (f *fields) fromValues(values []any, out []uint64) error {
	if err := checkArity(values, len(f.fs)); err != nil {
		return err
	}
	for i, fd := range f.fs {
		b, ok := fd.toBits(values[i])
		if !ok {
			return mismatch(i, fd.source().Type(), values[i])
		}
		out[i] = b
	}
	return nil
}

func (f *fields) toValues(bits []uint64) []any {
	res := make([]any, len(f.fs))
	for i, fd := range f.fs {
		res[i] = fd.toValue(bits[i])
	}
	return res
}

type tuple2 struct {
	*fields
}

// NewTuple2Reader keys two primitive columns as a fixed arity record.
func NewTuple2Reader(a, b column.Source) (Reader[[2]uint64], error) {
	f, err := newFields([]column.Source{a, b})
	if err != nil {
		return nil, err
	}
	return tuple2{f}, nil
}

func (t tuple2) Fill(ctx *Context, rows []int64, prev bool, dst [][2]uint64) {
	t.fillCols(ctx, rows, prev)
	c0, c1 := ctx.cols[0], ctx.cols[1]
	for i := range rows {
		dst[i] = [2]uint64{c0[i], c1[i]}
	}
}

func (t tuple2) Hash(k [2]uint64) uint64 {
	return t.hash(k[:])
}

func (t tuple2) IsNull(k [2]uint64) bool {
	return t.isNull(k[:])
}

func (t tuple2) FromValues(values ...any) ([2]uint64, error) {
	var k [2]uint64
	err := t.fromValues(values, k[:])
	return k, err
}

func (t tuple2) ToValues(k [2]uint64) []any {
	return t.toValues(k[:])
}

type tuple3 struct {
	*fields
}

// NewTuple3Reader keys three primitive columns as a fixed arity record.
func NewTuple3Reader(a, b, c column.Source) (Reader[[3]uint64], error) {
	f, err := newFields([]column.Source{a, b, c})
	if err != nil {
		return nil, err
	}
	return tuple3{f}, nil
}

func (t tuple3) Fill(ctx *Context, rows []int64, prev bool, dst [][3]uint64) {
	t.fillCols(ctx, rows, prev)
	c0, c1, c2 := ctx.cols[0], ctx.cols[1], ctx.cols[2]
	for i := range rows {
		dst[i] = [3]uint64{c0[i], c1[i], c2[i]}
	}
}

func (t tuple3) Hash(k [3]uint64) uint64 {
	return t.hash(k[:])
}

func (t tuple3) IsNull(k [3]uint64) bool {
	return t.isNull(k[:])
}

func (t tuple3) FromValues(values ...any) ([3]uint64, error) {
	var k [3]uint64
	err := t.fromValues(values, k[:])
	return k, err
}

func (t tuple3) ToValues(k [3]uint64) []any {
	return t.toValues(k[:])
}
