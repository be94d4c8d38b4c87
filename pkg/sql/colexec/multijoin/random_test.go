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
	"fmt"
	"testing"

	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/multijoin/pkg/testutil"
)

// slotHistory remembers the slot every key got, a key present in
// consecutive ticks must keep it.
type slotHistory map[int64]int32

func (sh slotHistory) check(t *testing.T, f *fixture) slotHistory {
	next := make(slotHistory)
	for s := int32(0); s < f.state.SlotHighWater(); s++ {
		key := f.state.KeyForSlot(s)
		if key == nil {
			continue
		}
		k := key[0].(int64)
		if old, ok := sh[k]; ok {
			require.Equal(t, old, s, "key %d moved", k)
		}
		next[k] = s
	}
	return next
}

func runRandomTicks(t *testing.T, f *fixture, seed int64, ticks, ops int) {
	gen := testutil.NewGenerator(seed, 48)
	history := make(slotHistory)
	for i := 0; i < ticks; i++ {
		for _, tbl := range f.tables {
			require.NoError(t, gen.Cycle(tbl, "k", "v", ops))
		}
		d := f.mustTick()
		history = history.check(t, f)

		stats := f.state.Stats()
		require.LessOrEqual(t, stats.LoadFactor, f.state.MaximumLoadFactor())
		require.Equal(t, int(stats.HighWater), stats.SlotCount+stats.FreeSlots)
		require.Equal(t, d.Slots(AddedSlot).Size(), int64(d.Count(AddedSlot)))
		for j := 1; j < len(d.Events); j++ {
			prev, cur := d.Events[j-1].Kind, d.Events[j].Kind
			if prev == SlotEmptied {
				require.Equal(t, SlotEmptied, cur)
			}
			if cur == AddedSlot {
				require.Equal(t, AddedSlot, prev)
			}
		}
	}
}

func TestRandomTicks(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			f := newInt64Fixture(t, 3)
			runRandomTicks(t, f, seed, 60, 6)
		})
	}
}

func TestRandomTicksParallel(t *testing.T) {
	stubs := gostub.Stub(&defaultParallelThreshold, 8)
	defer stubs.Reset()
	stubs.Stub(&defaultChunkSize, 3)

	f := newInt64Fixture(t, 2, WithParallelism(0, 4))
	runRandomTicks(t, f, 42, 40, 24)
}

func TestParallelBuild(t *testing.T) {
	stubs := gostub.Stub(&defaultParallelThreshold, 64)
	defer stubs.Reset()

	f := newInt64Fixture(t, 2, WithParallelism(0, 4), WithChunkSize(16))
	for i := 0; i < 5000; i++ {
		f.add(0, int64(i), int64(i), int64(0))
		if i%2 == 0 {
			f.add(1, int64(i), int64(i), int64(0))
		}
	}
	d := f.mustTick()
	require.Equal(t, 5000, f.state.SlotCount())
	require.Equal(t, 5000, d.Count(AddedSlot))
	// the first table creates every slot
	require.Equal(t, 2500, d.Count(SlotInputAdded))

	for i := 0; i < 5000; i += 3 {
		require.NoError(t, f.tables[0].Remove(int64(i)))
	}
	d = f.mustTick()
	// keys divisible by 6 are still held by the second table
	require.Equal(t, 1667, d.Count(SlotInputRemoved))
	require.Equal(t, 1667-834, d.Count(SlotEmptied))
	require.True(t, d.Slots(SlotEmptied).Intersect(d.Slots(AddedSlot)).IsEmpty())
}
