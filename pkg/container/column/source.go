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

// Package column defines random access readers over a logical column. Every
// source exposes the current value and the value as of the end of the
// previous update cycle, so readers of the previous view can overlap with a
// writer preparing the current one.
package column

import (
	"context"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// FillContext is per batch scratch state for bulk reads. It must be closed
// when the batch ends, successful or not.
type FillContext interface {
	Capacity() int
	Close() error
}

// Source is the type erased contract every column satisfies.
type Source interface {
	// Type is the physical type values are hashed and compared as.
	Type() types.T
	GetAny(rowKey int64) any
	GetPrevAny(rowKey int64) any
	MakeFillContext(capacity int) FillContext
	// FillAnyChunk boxes the values at rows into dst, in the order of rows.
	FillAnyChunk(ctx FillContext, dst *chunk.Chunk[any], rows []int64)
	FillPrevAnyChunk(ctx FillContext, dst *chunk.Chunk[any], rows []int64)
}

// TypedSource reads values of T without boxing.
type TypedSource[T any] interface {
	Source
	Get(rowKey int64) T
	GetPrev(rowKey int64) T
	FillChunk(ctx FillContext, dst *chunk.Chunk[T], rows []int64)
	FillPrevChunk(ctx FillContext, dst *chunk.Chunk[T], rows []int64)
}

type fillContext struct {
	capacity int
	closed   bool
}

func newFillContext(capacity int) *fillContext {
	return &fillContext{capacity: capacity}
}

func (fc *fillContext) Capacity() int {
	return fc.capacity
}

func (fc *fillContext) Close() error {
	if fc.closed {
		return moerr.NewInvalidState(context.TODO(), "fill context closed twice")
	}
	fc.closed = true
	return nil
}

func checkFill(ctx FillContext, dstCapacity int, rows int) {
	if ctx == nil {
		panic(moerr.NewInternalError(context.TODO(), "fill without a fill context"))
	}
	if rows > ctx.Capacity() || rows > dstCapacity {
		panic(moerr.NewInternalError(context.TODO(), "fill of %d rows exceeds capacity %d/%d",
			rows, ctx.Capacity(), dstCapacity))
	}
}

func missingRowKey(rowKey int64) *moerr.Error {
	return moerr.NewInternalError(context.TODO(), "row key %d is not present", rowKey)
}
