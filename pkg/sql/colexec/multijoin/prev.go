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

package multijoin

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/matrixorigin/multijoin/pkg/container/hashtable"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
)

// prevView remembers what the current tick overwrote, so readers can see
// the state as of the start of the tick. It stays valid after commit until
// the next tick begins.
type prevView[K comparable] struct {
	live      int
	highWater int32
	// first row key each (slot, table) pair had in the tick
	rowKeys map[inputKey]int64
	// slots allocated by the tick
	created *roaring.Bitmap
	// keys whose slot the committed tick freed
	freed map[K]int32
}

func newPrevView[K comparable]() *prevView[K] {
	return &prevView[K]{
		rowKeys: make(map[inputKey]int64),
		created: roaring.New(),
		freed:   make(map[K]int32),
	}
}

func (p *prevView[K]) reset(live int, highWater int32) {
	p.live = live
	p.highWater = highWater
	clear(p.rowKeys)
	p.created.Clear()
	clear(p.freed)
}

func (p *prevView[K]) remember(slot int32, table int, rowKey int64) {
	k := inputKey{slot: slot, table: table}
	if _, ok := p.rowKeys[k]; !ok {
		p.rowKeys[k] = rowKey
	}
}

// PrevSlotCount is the number of live slots at the start of the last tick.
func (h *Hasher[K]) PrevSlotCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.prev.live
}

// PrevRowKeyForSlot returns the row of table joined at slot at the start
// of the last tick.
func (h *Hasher[K]) PrevRowKeyForSlot(table int, slot int32) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if slot < 0 || slot >= h.prev.highWater || h.prev.created.Contains(uint32(slot)) {
		return rowset.NullRowKey
	}
	if rk, ok := h.prev.rowKeys[inputKey{slot: slot, table: table}]; ok {
		return rk
	}
	return h.slotCols[table][slot]
}

// LookupPrev is Lookup against the state at the start of the last tick.
func (h *Hasher[K]) LookupPrev(values ...any) (int32, bool) {
	k, err := h.readers[0].FromValues(values...)
	if err != nil {
		return hashtable.EmptySlot, false
	}
	return h.LookupPrevKey(k)
}

func (h *Hasher[K]) LookupPrevKey(k K) (int32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.prev.freed[k]; ok {
		return s, true
	}
	s := h.table.Find(h.readers[0].Hash(k), k)
	if s == hashtable.EmptySlot || h.prev.created.Contains(uint32(s)) {
		return hashtable.EmptySlot, false
	}
	return s, true
}
