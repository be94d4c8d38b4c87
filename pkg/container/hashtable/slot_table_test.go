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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundUpCapacity(t *testing.T) {
	require.Equal(t, 2, RoundUpCapacity(0))
	require.Equal(t, 2, RoundUpCapacity(2))
	require.Equal(t, 4, RoundUpCapacity(3))
	require.Equal(t, 16, RoundUpCapacity(16))
	require.Equal(t, 32, RoundUpCapacity(17))
}

func TestSlotTableInsertFind(t *testing.T) {
	ht := NewSlotTable[int64](16, 0.75, 0.5)
	for i := int64(0); i < 10; i++ {
		ht.EnsureCapacity(1)
		ht.Insert(Int64Hash(uint64(i*10)), i*10, int32(i))
	}
	require.Equal(t, 10, ht.Live())
	require.LessOrEqual(t, ht.LoadFactor(), 0.75)
	for i := int64(0); i < 10; i++ {
		require.Equal(t, int32(i), ht.Find(Int64Hash(uint64(i*10)), i*10))
		require.Equal(t, i*10, ht.Key(int32(i)))
	}
	require.Equal(t, EmptySlot, ht.Find(Int64Hash(5), 5))
	require.Panics(t, func() { ht.Insert(Int64Hash(0), 0, 42) })
}

func TestSlotTableTombstones(t *testing.T) {
	ht := NewSlotTable[int64](8, 0.75, 0.5)
	// force every key onto one probe chain
	const h = 3
	ht.Insert(h, 1, 0)
	ht.Insert(h, 2, 1)
	ht.Insert(h, 3, 2)

	require.Equal(t, int32(0), ht.Delete(h, 1))
	require.Equal(t, EmptySlot, ht.Delete(h, 1))
	require.Equal(t, 1, ht.Tombstones())
	require.Equal(t, 3, ht.Fill())

	// lookups walk past the tombstone
	require.Equal(t, int32(2), ht.Find(h, 3))

	// inserts reuse the first tombstone on the path
	slot, pos := ht.Probe(h, 4)
	require.Equal(t, EmptySlot, slot)
	require.Equal(t, uint64(3), pos)
	ht.InstallAt(pos, h, 4, 3)
	require.Equal(t, 0, ht.Tombstones())
	require.Equal(t, int32(3), ht.Find(h, 4))
}

func TestSlotTableGrowth(t *testing.T) {
	ht := NewSlotTable[int64](16, 0.75, 0.5)
	for i := int64(0); i < 12; i++ {
		ht.EnsureCapacity(1)
		ht.Insert(Int64Hash(uint64(i)), i, int32(i))
	}
	require.Equal(t, 16, ht.Capacity())
	require.Equal(t, 0, ht.Rehashes())

	// 13th key would push fill to 13/16 > 0.75
	require.True(t, ht.EnsureCapacity(1))
	require.Equal(t, 32, ht.Capacity())
	require.Equal(t, 1, ht.Rehashes())
	for i := int64(0); i < 12; i++ {
		require.Equal(t, int32(i), ht.Find(Int64Hash(uint64(i)), i))
	}

	// a large batch goes straight to the target load factor
	require.True(t, ht.EnsureCapacity(100))
	require.Equal(t, 256, ht.Capacity())
}

func TestSlotTableRehashDropsTombstones(t *testing.T) {
	ht := NewSlotTable[int64](8, 0.75, 0.5)
	for i := int64(0); i < 6; i++ {
		ht.Insert(Int64Hash(uint64(i)), i, int32(i))
	}
	for i := int64(0); i < 5; i++ {
		ht.Delete(Int64Hash(uint64(i)), i)
	}
	require.Equal(t, 6, ht.Fill())
	require.True(t, ht.EnsureCapacity(1))
	require.Equal(t, 8, ht.Capacity())
	require.Equal(t, 0, ht.Tombstones())
	require.Equal(t, int32(5), ht.Find(Int64Hash(5), 5))

	require.Panics(t, func() { ht.Rehash(6) })
}

func TestCompositeKeys(t *testing.T) {
	ht := NewSlotTable[[2]uint64](4, 0.75, 0.5)
	k := [2]uint64{1, 2}
	h := CombineHash(CombineHash(0, Int64Hash(1)), Int64Hash(2))
	ht.Insert(h, k, 0)
	require.Equal(t, int32(0), ht.Find(h, [2]uint64{1, 2}))
	require.Equal(t, EmptySlot, ht.Find(h, [2]uint64{2, 1}))

	var n int
	ht.ForEach(func(hash uint64, slot int32) {
		require.Equal(t, h, hash)
		n++
	})
	require.Equal(t, 1, n)
}
