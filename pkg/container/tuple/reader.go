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

// Package tuple turns the key columns of a row into one comparable key.
// Every reader canonicalizes before hashing and equality: booleans become
// bytes, timestamps epoch nanoseconds, floats their canonical bits.
package tuple

import (
	"context"
	"math"

	"go.uber.org/multierr"
	"golang.org/x/exp/constraints"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/hashtable"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// Reader reads keys of type K from a fixed list of key columns.
type Reader[K comparable] interface {
	Types() []types.T
	// NewContext acquires per batch scratch state, close it when done.
	NewContext(capacity int) *Context
	// Fill writes the key of every row into dst, reading the previous
	// view when prev is set.
	Fill(ctx *Context, rows []int64, prev bool, dst []K)
	Hash(k K) uint64
	// IsNull reports whether any field of k holds its null sentinel.
	IsNull(k K) bool
	// FromValues builds the key of user supplied values, one per column.
	FromValues(values ...any) (K, error)
	ToValues(k K) []any
}

// Context holds the fill contexts and scratch chunks of one batch.
type Context struct {
	fills   []column.FillContext
	scratch []chunk.Untyped
	release []func()
	cols    [][]uint64
	packer  Packer
}

func newContext(srcs []column.Source, capacity int) *Context {
	ctx := &Context{
		fills:   make([]column.FillContext, len(srcs)),
		scratch: make([]chunk.Untyped, len(srcs)),
	}
	for i, src := range srcs {
		ctx.fills[i] = src.MakeFillContext(capacity)
	}
	return ctx
}

// Close releases every fill context, all of them are closed even when one
// fails.
func (ctx *Context) Close() error {
	var err error
	for _, fc := range ctx.fills {
		err = multierr.Append(err, fc.Close())
	}
	for _, put := range ctx.release {
		put()
	}
	ctx.release = nil
	clear(ctx.scratch)
	return err
}

func nullOf(src column.Source) any {
	if _, ok := src.(*column.Reinterpret[types.Boolean, int8]); ok {
		return types.BooleanNullByte
	}
	return types.NullOf(src.Type())
}

func checkArity(values []any, n int) error {
	if len(values) != n {
		return moerr.NewInvalidArg(context.TODO(), "key arity", len(values))
	}
	return nil
}

// single reads a one column key of physical Go type T as K.
type single[T any, K comparable] struct {
	src   column.TypedSource[T]
	conv  func(T) K
	back  func(K) T
	hash  func(K) uint64
	null  K
	pools chunkPools[T]
}

func (s *single[T, K]) Types() []types.T {
	return []types.T{s.src.Type()}
}

func (s *single[T, K]) NewContext(capacity int) *Context {
	ctx := newContext([]column.Source{s.src}, capacity)
	s.pools.acquire(ctx, 0, capacity)
	return ctx
}

func (s *single[T, K]) Fill(ctx *Context, rows []int64, prev bool, dst []K) {
	c := chunk.As[T](ctx.scratch[0])
	if prev {
		s.src.FillPrevChunk(ctx.fills[0], c, rows)
	} else {
		s.src.FillChunk(ctx.fills[0], c, rows)
	}
	for i, v := range c.Values() {
		dst[i] = s.conv(v)
	}
}

func (s *single[T, K]) Hash(k K) uint64 {
	return s.hash(k)
}

func (s *single[T, K]) IsNull(k K) bool {
	return k == s.null
}

func (s *single[T, K]) FromValues(values ...any) (K, error) {
	var zero K
	if err := checkArity(values, 1); err != nil {
		return zero, err
	}
	pv, ok := PhysicalValueOf(s.src, values[0])
	if !ok {
		return zero, mismatch(0, s.src.Type(), values[0])
	}
	v, ok := pv.(T)
	if !ok {
		return zero, mismatch(0, s.src.Type(), values[0])
	}
	return s.conv(v), nil
}

func (s *single[T, K]) ToValues(k K) []any {
	return []any{s.back(k)}
}

func identity[T any](v T) T {
	return v
}

func intHash[T constraints.Integer](v T) uint64 {
	return hashtable.Int64Hash(uint64(v))
}

// NewIntReader reads a single integer like key column without conversion.
func NewIntReader[T constraints.Integer](src column.TypedSource[T]) Reader[T] {
	null, _ := nullOf(src).(T)
	return &single[T, T]{
		src:  src,
		conv: identity[T],
		back: identity[T],
		hash: intHash[T],
		null: null,
	}
}

// NewFloat32Reader keys a float column by its canonical bits.
func NewFloat32Reader(src column.TypedSource[float32]) Reader[uint32] {
	return &single[float32, uint32]{
		src:  src,
		conv: types.CanonicalFloat32,
		back: math.Float32frombits,
		hash: intHash[uint32],
		null: types.CanonicalFloat32(types.NullFloat32),
	}
}

func NewFloat64Reader(src column.TypedSource[float64]) Reader[uint64] {
	return &single[float64, uint64]{
		src:  src,
		conv: types.CanonicalFloat64,
		back: math.Float64frombits,
		hash: hashtable.Int64Hash,
		null: types.CanonicalFloat64(types.NullFloat64),
	}
}

// refReader keys a reference column by canonical value equality.
type refReader struct {
	src   column.Source
	pools chunkPools[any]
}

func NewRefReader(src column.Source) Reader[any] {
	return &refReader{src: src}
}

func (r *refReader) Types() []types.T {
	return []types.T{types.T_ref}
}

func (r *refReader) NewContext(capacity int) *Context {
	ctx := newContext([]column.Source{r.src}, capacity)
	r.pools.acquire(ctx, 0, capacity)
	return ctx
}

func (r *refReader) Fill(ctx *Context, rows []int64, prev bool, dst []any) {
	c := chunk.As[any](ctx.scratch[0])
	if prev {
		r.src.FillPrevAnyChunk(ctx.fills[0], c, rows)
	} else {
		r.src.FillAnyChunk(ctx.fills[0], c, rows)
	}
	for i, v := range c.Values() {
		dst[i] = CanonicalRef(v)
	}
	clear(c.Values())
}

func (r *refReader) Hash(k any) uint64 {
	return RefHash(k)
}

func (r *refReader) IsNull(k any) bool {
	return k == nil
}

func (r *refReader) FromValues(values ...any) (any, error) {
	if err := checkArity(values, 1); err != nil {
		return nil, err
	}
	return CanonicalRef(values[0]), nil
}

func (r *refReader) ToValues(k any) []any {
	return []any{RefValue(k)}
}
