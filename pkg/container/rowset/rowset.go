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

// Package rowset wraps the roaring64 bitmap as the ordered set of row keys
// a table currently holds. Runs of contiguous keys stay compressed.
package rowset

import (
	"context"
	"fmt"

	roaring "github.com/RoaringBitmap/roaring/roaring64"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
)

// NullRowKey means "no row".
const NullRowKey int64 = -1

// MaxRowKey is the largest row key, row keys are 63 bit.
const MaxRowKey int64 = 1<<63 - 1

type RowSet struct {
	bm *roaring.Bitmap
}

func New() *RowSet {
	return &RowSet{bm: roaring.New()}
}

// Of builds a row set from explicit keys.
func Of(keys ...int64) *RowSet {
	rs := New()
	for _, k := range keys {
		rs.Insert(k)
	}
	return rs
}

// Range builds the row set [first, last], both ends included.
func Range(first, last int64) *RowSet {
	rs := New()
	rs.InsertRange(first, last)
	return rs
}

func (rs *RowSet) Size() int64 {
	if rs == nil {
		return 0
	}
	return int64(rs.bm.GetCardinality())
}

func (rs *RowSet) IsEmpty() bool {
	return rs == nil || rs.bm.IsEmpty()
}

func (rs *RowSet) Contains(k int64) bool {
	if rs == nil || k < 0 {
		return false
	}
	return rs.bm.Contains(uint64(k))
}

// FirstRowKey returns NullRowKey for an empty set.
func (rs *RowSet) FirstRowKey() int64 {
	if rs.IsEmpty() {
		return NullRowKey
	}
	return int64(rs.bm.Minimum())
}

// LastRowKey returns NullRowKey for an empty set.
func (rs *RowSet) LastRowKey() int64 {
	if rs.IsEmpty() {
		return NullRowKey
	}
	return int64(rs.bm.Maximum())
}

func (rs *RowSet) Insert(k int64) {
	checkRowKey(k)
	rs.bm.Add(uint64(k))
}

// InsertRange adds [first, last], both ends included.
func (rs *RowSet) InsertRange(first, last int64) {
	checkRowKey(first)
	checkRowKey(last)
	if last < first {
		return
	}
	rs.bm.AddRange(uint64(first), uint64(last)+1)
}

// Remove deletes k and reports whether it was present.
func (rs *RowSet) Remove(k int64) bool {
	if k < 0 {
		return false
	}
	return rs.bm.CheckedRemove(uint64(k))
}

// RemoveRange deletes [first, last], both ends included.
func (rs *RowSet) RemoveRange(first, last int64) {
	if last < first || last < 0 {
		return
	}
	if first < 0 {
		first = 0
	}
	rs.bm.RemoveRange(uint64(first), uint64(last)+1)
}

// Union returns a new set holding the keys of both sets.
func (rs *RowSet) Union(o *RowSet) *RowSet {
	res := rs.Copy()
	if !o.IsEmpty() {
		res.bm.Or(o.bm)
	}
	return res
}

// Difference returns a new set holding the keys of rs not in o.
func (rs *RowSet) Difference(o *RowSet) *RowSet {
	res := rs.Copy()
	if !o.IsEmpty() {
		res.bm.AndNot(o.bm)
	}
	return res
}

// Intersect returns a new set holding the keys present in both sets.
func (rs *RowSet) Intersect(o *RowSet) *RowSet {
	if rs.IsEmpty() || o.IsEmpty() {
		return New()
	}
	return &RowSet{bm: roaring.And(rs.bm, o.bm)}
}

// InsertAll unions o into rs in place.
func (rs *RowSet) InsertAll(o *RowSet) {
	if !o.IsEmpty() {
		rs.bm.Or(o.bm)
	}
}

// RemoveAll subtracts o from rs in place.
func (rs *RowSet) RemoveAll(o *RowSet) {
	if !o.IsEmpty() {
		rs.bm.AndNot(o.bm)
	}
}

// Copy returns a snapshot that does not share storage with rs.
func (rs *RowSet) Copy() *RowSet {
	if rs == nil {
		return New()
	}
	return &RowSet{bm: rs.bm.Clone()}
}

// IsFlat reports whether the keys are exactly [0, size).
func (rs *RowSet) IsFlat() bool {
	if rs.IsEmpty() {
		return true
	}
	return rs.bm.Minimum() == 0 && rs.bm.Maximum() == rs.bm.GetCardinality()-1
}

func (rs *RowSet) Equals(o *RowSet) bool {
	if rs.IsEmpty() || o.IsEmpty() {
		return rs.IsEmpty() && o.IsEmpty()
	}
	return rs.bm.Equals(o.bm)
}

// Iterator walks the keys in ascending order.
type Iterator struct {
	it roaring.IntPeekable64
}

func (rs *RowSet) Iterator() *Iterator {
	if rs == nil {
		return &Iterator{}
	}
	return &Iterator{it: rs.bm.Iterator()}
}

func (it *Iterator) HasNext() bool {
	return it.it != nil && it.it.HasNext()
}

func (it *Iterator) Next() int64 {
	return int64(it.it.Next())
}

// ForEach calls fn for every key in order until fn returns false.
func (rs *RowSet) ForEach(fn func(k int64) bool) {
	it := rs.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

// ForEachChunk hands fn consecutive ordered runs of at most chunkSize keys.
// The slice is reused between calls.
func (rs *RowSet) ForEachChunk(chunkSize int, fn func(keys []int64) error) error {
	if rs.IsEmpty() {
		return nil
	}
	if chunkSize <= 0 {
		return moerr.NewInvalidArg(context.TODO(), "chunk size", chunkSize)
	}
	size := rs.Size()
	if int64(chunkSize) > size {
		chunkSize = int(size)
	}
	buf := make([]int64, 0, chunkSize)
	it := rs.Iterator()
	for it.HasNext() {
		buf = append(buf, it.Next())
		if len(buf) == chunkSize {
			if err := fn(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		return fn(buf)
	}
	return nil
}

// ToSlice materializes the keys, only meant for small sets.
func (rs *RowSet) ToSlice() []int64 {
	res := make([]int64, 0, rs.Size())
	rs.ForEach(func(k int64) bool {
		res = append(res, k)
		return true
	})
	return res
}

func (rs *RowSet) String() string {
	if rs.IsEmpty() {
		return "{}"
	}
	if rs.Size() > 32 {
		return fmt.Sprintf("{%d keys in [%d, %d]}", rs.Size(), rs.FirstRowKey(), rs.LastRowKey())
	}
	return fmt.Sprintf("%v", rs.ToSlice())
}

func checkRowKey(k int64) {
	if k < 0 {
		panic(moerr.NewInternalError(context.TODO(), "invalid row key %d", k))
	}
}
