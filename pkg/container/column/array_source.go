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
	"sync"

	"github.com/tidwall/btree"

	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// prevEntry is the value a row key had at the start of the cycle.
type prevEntry[T any] struct {
	v       T
	present bool
}

// ArraySource is a sparse writable column. The first write of a row key in
// a cycle saves its old value, the previous view is the current one with
// the saved values laid over it. CommitPrev drops them once no reader
// needs them any more.
type ArraySource[T any] struct {
	mu   sync.RWMutex
	typ  types.T
	cur  map[int64]T
	keys *btree.BTreeG[int64]
	undo map[int64]prevEntry[T]
}

func NewArraySource[T any]() *ArraySource[T] {
	var zero T
	return &ArraySource[T]{
		typ:  types.TypeOf(zero),
		cur:  make(map[int64]T),
		keys: btree.NewBTreeGOptions(func(a, b int64) bool { return a < b }, btree.Options{NoLocks: true}),
		undo: make(map[int64]prevEntry[T]),
	}
}

func (s *ArraySource[T]) Type() types.T {
	return s.typ
}

func (s *ArraySource[T]) Get(rowKey int64) T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cur[rowKey]
	if !ok {
		panic(missingRowKey(rowKey))
	}
	return v
}

func (s *ArraySource[T]) GetPrev(rowKey int64) T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.getLocked(rowKey, true)
	if !ok {
		panic(missingRowKey(rowKey))
	}
	return v
}

func (s *ArraySource[T]) getLocked(rowKey int64, prev bool) (T, bool) {
	if prev {
		if e, ok := s.undo[rowKey]; ok {
			return e.v, e.present
		}
	}
	v, ok := s.cur[rowKey]
	return v, ok
}

func (s *ArraySource[T]) GetAny(rowKey int64) any {
	return s.Get(rowKey)
}

func (s *ArraySource[T]) GetPrevAny(rowKey int64) any {
	return s.GetPrev(rowKey)
}

func (s *ArraySource[T]) MakeFillContext(capacity int) FillContext {
	return newFillContext(capacity)
}

func (s *ArraySource[T]) FillChunk(ctx FillContext, dst *chunk.Chunk[T], rows []int64) {
	s.fill(ctx, dst, rows, false)
}

func (s *ArraySource[T]) FillPrevChunk(ctx FillContext, dst *chunk.Chunk[T], rows []int64) {
	s.fill(ctx, dst, rows, true)
}

func (s *ArraySource[T]) fill(ctx FillContext, dst *chunk.Chunk[T], rows []int64, prev bool) {
	checkFill(ctx, dst.Capacity(), len(rows))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := dst.Raw()
	for i, k := range rows {
		v, ok := s.getLocked(k, prev)
		if !ok {
			panic(missingRowKey(k))
		}
		out[i] = v
	}
	dst.SetSize(len(rows))
}

func (s *ArraySource[T]) FillAnyChunk(ctx FillContext, dst *chunk.Chunk[any], rows []int64) {
	s.fillAny(ctx, dst, rows, false)
}

func (s *ArraySource[T]) FillPrevAnyChunk(ctx FillContext, dst *chunk.Chunk[any], rows []int64) {
	s.fillAny(ctx, dst, rows, true)
}

func (s *ArraySource[T]) fillAny(ctx FillContext, dst *chunk.Chunk[any], rows []int64, prev bool) {
	checkFill(ctx, dst.Capacity(), len(rows))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := dst.Raw()
	for i, k := range rows {
		v, ok := s.getLocked(k, prev)
		if !ok {
			panic(missingRowKey(k))
		}
		out[i] = v
	}
	dst.SetSize(len(rows))
}

// saveLocked remembers the value of rowKey before its first write in the
// cycle.
func (s *ArraySource[T]) saveLocked(rowKey int64) {
	if _, ok := s.undo[rowKey]; ok {
		return
	}
	v, ok := s.cur[rowKey]
	s.undo[rowKey] = prevEntry[T]{v: v, present: ok}
}

func (s *ArraySource[T]) setLocked(rowKey int64, v T) {
	s.saveLocked(rowKey)
	if _, ok := s.cur[rowKey]; !ok {
		s.keys.Set(rowKey)
	}
	s.cur[rowKey] = v
}

func (s *ArraySource[T]) removeLocked(rowKey int64) {
	s.saveLocked(rowKey)
	if _, ok := s.cur[rowKey]; ok {
		delete(s.cur, rowKey)
		s.keys.Delete(rowKey)
	}
}

// Set writes v at rowKey in the current view.
func (s *ArraySource[T]) Set(rowKey int64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(rowKey, v)
}

// Remove drops rowKey from the current view, the previous view keeps it.
func (s *ArraySource[T]) Remove(rowKey int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(rowKey)
}

// Shift moves the current values along sd, previous values stay in
// pre-shift row key space. Only the rows inside the shifted ranges are
// visited.
func (s *ArraySource[T]) Shift(sd *rowset.ShiftData) {
	if sd.IsEmpty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		moved []int64
		vals  []T
	)
	_ = sd.ForEachMove(func(sh rowset.Shift) error {
		moved, vals = moved[:0], vals[:0]
		s.keys.Ascend(sh.Begin, func(k int64) bool {
			if k > sh.End {
				return false
			}
			moved = append(moved, k)
			return true
		})
		for _, k := range moved {
			vals = append(vals, s.cur[k])
			s.removeLocked(k)
		}
		for i, k := range moved {
			s.setLocked(k+sh.Delta, vals[i])
		}
		return nil
	})
}

// CommitPrev makes the current view the previous one.
func (s *ArraySource[T]) CommitPrev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.undo)
}

// Len is the number of rows in the current view.
func (s *ArraySource[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cur)
}
