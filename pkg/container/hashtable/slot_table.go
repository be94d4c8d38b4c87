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

package hashtable

import (
	"context"
	"math"
	"math/bits"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
)

const (
	EmptySlot     int32 = -1
	TombstoneSlot int32 = -2

	kMinCapacity = 2
)

// Cell is one hash array entry. Slot is EmptySlot, TombstoneSlot or the
// slot of the key stored at that slot in the key arena.
type Cell struct {
	Hash uint64
	Slot int32
}

// SlotTable is an open addressing table with linear probing mapping keys to
// slots. Keys live in an arena indexed by slot, so a rehash only moves cells
// and slot identity is preserved.
type SlotTable[K comparable] struct {
	cells      []Cell
	mask       uint64
	live       int
	tombstones int
	maxLoad    float64
	targetLoad float64
	keys       []K
	rehashes   int
}

func NewSlotTable[K comparable](capacity int, maxLoad, targetLoad float64) *SlotTable[K] {
	capacity = RoundUpCapacity(capacity)
	t := &SlotTable[K]{
		maxLoad:    maxLoad,
		targetLoad: targetLoad,
	}
	t.resetCells(capacity)
	return t
}

// RoundUpCapacity returns the smallest usable power of two not below n.
func RoundUpCapacity(n int) int {
	if n <= kMinCapacity {
		return kMinCapacity
	}
	return 1 << bits.Len(uint(n-1))
}

func (t *SlotTable[K]) resetCells(capacity int) {
	t.cells = make([]Cell, capacity)
	for i := range t.cells {
		t.cells[i].Slot = EmptySlot
	}
	t.mask = uint64(capacity - 1)
	t.tombstones = 0
}

func (t *SlotTable[K]) Capacity() int {
	return len(t.cells)
}

func (t *SlotTable[K]) Live() int {
	return t.live
}

func (t *SlotTable[K]) Tombstones() int {
	return t.tombstones
}

// Fill counts every cell that is not empty.
func (t *SlotTable[K]) Fill() int {
	return t.live + t.tombstones
}

func (t *SlotTable[K]) LoadFactor() float64 {
	return float64(t.Fill()) / float64(len(t.cells))
}

func (t *SlotTable[K]) MaximumLoadFactor() float64 {
	return t.maxLoad
}

func (t *SlotTable[K]) TargetLoadFactor() float64 {
	return t.targetLoad
}

// Rehashes is the number of rehashes since creation.
func (t *SlotTable[K]) Rehashes() int {
	return t.rehashes
}

// Key returns the key installed at slot.
func (t *SlotTable[K]) Key(slot int32) K {
	return t.keys[slot]
}

// Find returns the slot holding key, or EmptySlot.
func (t *SlotTable[K]) Find(hash uint64, key K) int32 {
	idx := hash & t.mask
	for n := 0; n < len(t.cells); n++ {
		c := &t.cells[idx]
		if c.Slot == EmptySlot {
			return EmptySlot
		}
		if c.Slot >= 0 && c.Hash == hash && t.keys[c.Slot] == key {
			return c.Slot
		}
		idx = (idx + 1) & t.mask
	}
	return EmptySlot
}

// Probe returns the slot holding key. When the key is absent it returns
// EmptySlot and the cell position an insert should use: the first
// tombstone on the probe path, otherwise the terminating empty cell.
func (t *SlotTable[K]) Probe(hash uint64, key K) (int32, uint64) {
	idx := hash & t.mask
	pos := uint64(math.MaxUint64)
	for n := 0; n < len(t.cells); n++ {
		c := &t.cells[idx]
		switch {
		case c.Slot == EmptySlot:
			if pos == math.MaxUint64 {
				pos = idx
			}
			return EmptySlot, pos
		case c.Slot == TombstoneSlot:
			if pos == math.MaxUint64 {
				pos = idx
			}
		case c.Hash == hash && t.keys[c.Slot] == key:
			return c.Slot, idx
		}
		idx = (idx + 1) & t.mask
	}
	if pos == math.MaxUint64 {
		panic(moerr.NewInternalError(context.TODO(), "hash table of capacity %d is exhausted", len(t.cells)))
	}
	return EmptySlot, pos
}

// InstallAt stores key at slot in the cell returned by a failed Probe.
func (t *SlotTable[K]) InstallAt(pos uint64, hash uint64, key K, slot int32) {
	c := &t.cells[pos]
	if c.Slot >= 0 {
		panic(moerr.NewInternalError(context.TODO(), "cell %d already holds slot %d", pos, c.Slot))
	}
	if c.Slot == TombstoneSlot {
		t.tombstones--
	}
	c.Hash = hash
	c.Slot = slot
	t.live++
	t.setKey(slot, key)
}

// Insert installs key at slot, the key must be absent.
func (t *SlotTable[K]) Insert(hash uint64, key K, slot int32) {
	found, pos := t.Probe(hash, key)
	if found != EmptySlot {
		panic(moerr.NewInternalError(context.TODO(), "key already installed at slot %d", found))
	}
	t.InstallAt(pos, hash, key, slot)
}

// Delete tombstones the cell holding key and returns its slot, or EmptySlot
// when the key is absent. The key arena entry is cleared.
func (t *SlotTable[K]) Delete(hash uint64, key K) int32 {
	slot, pos := t.Probe(hash, key)
	if slot == EmptySlot {
		return EmptySlot
	}
	t.cells[pos].Slot = TombstoneSlot
	t.live--
	t.tombstones++
	var zero K
	t.keys[slot] = zero
	return slot
}

func (t *SlotTable[K]) setKey(slot int32, key K) {
	if int(slot) >= len(t.keys) {
		n := max(2*len(t.keys), int(slot)+1, len(t.cells))
		keys := make([]K, n)
		copy(keys, t.keys)
		t.keys = keys
	}
	t.keys[slot] = key
}

// EnsureCapacity makes room for n more keys so that fill stays within the
// maximum load factor. When growth is needed the new capacity is the
// smallest power of two holding live+n keys at the target load factor,
// never below the current one. Tombstones are discarded on the way.
func (t *SlotTable[K]) EnsureCapacity(n int) bool {
	if float64(t.Fill()+n) <= t.maxLoad*float64(len(t.cells)) {
		return false
	}
	need := int(math.Ceil(float64(t.live+n) / t.targetLoad))
	capacity := max(RoundUpCapacity(need), len(t.cells))
	t.Rehash(capacity)
	return true
}

// Rehash rebuilds the cell array at capacity, a power of two.
func (t *SlotTable[K]) Rehash(capacity int) {
	if capacity&(capacity-1) != 0 || capacity < t.live {
		panic(moerr.NewInternalError(context.TODO(), "bad rehash capacity %d for %d keys", capacity, t.live))
	}
	old := t.cells
	t.resetCells(capacity)
	for i := range old {
		c := &old[i]
		if c.Slot < 0 {
			continue
		}
		idx := c.Hash & t.mask
		for t.cells[idx].Slot != EmptySlot {
			idx = (idx + 1) & t.mask
		}
		t.cells[idx] = *c
	}
	t.rehashes++
}

// ForEach visits every live cell in array order.
func (t *SlotTable[K]) ForEach(fn func(hash uint64, slot int32)) {
	for i := range t.cells {
		if c := &t.cells[i]; c.Slot >= 0 {
			fn(c.Hash, c.Slot)
		}
	}
}
