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

// Package chunk holds fixed capacity typed buffers. All bulk data movement
// between column sources and hashers is expressed as chunk in, chunk out.
// A chunk is owned by its caller, callees never retain one past a call.
package chunk

import (
	"context"
	"fmt"
	"sync"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// Untyped is the type erased view of a chunk.
type Untyped interface {
	Type() types.T
	Size() int
	SetSize(n int)
	Capacity() int
}

// Chunk is a fixed capacity buffer with a logical size.
type Chunk[T any] struct {
	typ  types.T
	size int
	data []T
}

// New allocates a chunk able to hold capacity values.
func New[T any](capacity int) *Chunk[T] {
	var zero T
	return &Chunk[T]{
		typ:  typeOfElem(zero),
		data: make([]T, capacity),
	}
}

// Wrap makes a full chunk over data without copying.
func Wrap[T any](data []T) *Chunk[T] {
	var zero T
	return &Chunk[T]{
		typ:  typeOfElem(zero),
		size: len(data),
		data: data,
	}
}

func (c *Chunk[T]) Type() types.T {
	return c.typ
}

func (c *Chunk[T]) Get(i int) T {
	if i >= c.size {
		panic(moerr.NewInternalError(context.TODO(), "chunk index %d out of size %d", i, c.size))
	}
	return c.data[i]
}

func (c *Chunk[T]) Set(i int, v T) {
	c.data[i] = v
}

func (c *Chunk[T]) Size() int {
	return c.size
}

func (c *Chunk[T]) SetSize(n int) {
	if n < 0 || n > len(c.data) {
		panic(moerr.NewInternalError(context.TODO(), "chunk size %d exceeds capacity %d", n, len(c.data)))
	}
	c.size = n
}

func (c *Chunk[T]) Capacity() int {
	return len(c.data)
}

// Values returns the live part of the chunk.
func (c *Chunk[T]) Values() []T {
	return c.data[:c.size]
}

// Raw returns the whole backing array, writers fill it and then SetSize.
func (c *Chunk[T]) Raw() []T {
	return c.data
}

func (c *Chunk[T]) Reset() {
	c.size = 0
}

// Append adds v after the last live value.
func (c *Chunk[T]) Append(v T) {
	if c.size == len(c.data) {
		panic(moerr.NewInternalError(context.TODO(), "append to full chunk of capacity %d", len(c.data)))
	}
	c.data[c.size] = v
	c.size++
}

func (c *Chunk[T]) String() string {
	return fmt.Sprintf("%s%v", c.typ, c.Values())
}

// As views u as a chunk of T. The caller must know the element type
// statically, a mismatch is a programming error.
func As[T any](u Untyped) *Chunk[T] {
	c, ok := u.(*Chunk[T])
	if !ok {
		panic(moerr.NewInternalError(context.TODO(), "chunk of type %s is not %T", u.Type(), c))
	}
	return c
}

func typeOfElem(v any) types.T {
	switch v.(type) {
	case int8, int16, int32, int64, uint16, float32, float64:
		return types.TypeOf(v)
	}
	return types.T_ref
}

// Pool hands out chunks of one capacity for scoped use within a batch.
type Pool[T any] struct {
	capacity int
	pool     sync.Pool
}

func NewPool[T any](capacity int) *Pool[T] {
	p := &Pool[T]{capacity: capacity}
	p.pool.New = func() any {
		return New[T](capacity)
	}
	return p
}

func (p *Pool[T]) Get() *Chunk[T] {
	c := p.pool.Get().(*Chunk[T])
	c.Reset()
	return c
}

// Put returns c to the pool. Reference chunks are cleared so the pool does
// not pin values.
func (p *Pool[T]) Put(c *Chunk[T]) {
	if c == nil || c.Capacity() != p.capacity {
		return
	}
	if c.typ == types.T_ref {
		clear(c.data)
	}
	c.Reset()
	p.pool.Put(c)
}

func (p *Pool[T]) Capacity() int {
	return p.capacity
}
