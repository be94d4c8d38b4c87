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
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/smartystreets/goconvey/convey"

	"github.com/matrixorigin/multijoin/pkg/container/rowset"
)

func TestTracker(t *testing.T) {
	convey.Convey("tracker coalesces a tick", t, func() {
		tr := newTracker()
		now := map[inputKey]int64{}
		rowKey := func(table int, slot int32) int64 {
			if rk, ok := now[inputKey{slot: slot, table: table}]; ok {
				return rk
			}
			return rowset.NullRowKey
		}
		keyOf := func(slot int32) []any {
			return []any{int64(slot) * 10}
		}

		convey.Convey("added and modified rows", func() {
			tr.create(3, 0)
			tr.touch(3, 0, rowset.NullRowKey).added = true
			now[inputKey{3, 0}] = 7
			tr.touch(3, 1, rowset.NullRowKey).added = true
			now[inputKey{3, 1}] = 2
			tr.touch(1, 1, 4).modified = true
			now[inputKey{1, 1}] = 4
			tr.touch(1, 0, 2)
			now[inputKey{1, 0}] = 5

			d := tr.delta(9, roaring.New(), rowKey, keyOf)
			convey.So(d.Tick, convey.ShouldEqual, 9)
			convey.So(d.String(), convey.ShouldEqual,
				"tick 9: ADDED_SLOT(3, [30]) SLOT_INPUT_MODIFIED(1, 1, 4->4) SLOT_INPUT_ADDED(3, 1, 2)")
		})

		convey.Convey("emptied slots come last", func() {
			tr.touch(2, 0, 8)
			tr.touch(0, 1, 6)
			now[inputKey{0, 1}] = 6
			tr.touch(0, 0, 1).modified = true
			now[inputKey{0, 0}] = 1
			emptied := roaring.BitmapOf(2)

			d := tr.delta(1, emptied, rowKey, keyOf)
			convey.So(kinds(d), convey.ShouldResemble, []EventKind{SlotInputModified, SlotInputRemoved, SlotEmptied})
			convey.So(d.Events[1].PrevRowKey, convey.ShouldEqual, 8)
			convey.So(d.Count(SlotEmptied), convey.ShouldEqual, 1)
			convey.So(d.Slots(SlotEmptied).Equals(rowset.Of(2)), convey.ShouldBeTrue)
		})

		convey.Convey("a slot created and emptied in one tick is silent", func() {
			tr.create(5, 0)
			tr.touch(5, 0, rowset.NullRowKey).added = true
			d := tr.delta(1, roaring.BitmapOf(5), rowKey, keyOf)
			convey.So(d.IsEmpty(), convey.ShouldBeTrue)
		})

		convey.Convey("reset forgets the tick", func() {
			tr.create(1, 0)
			tr.touch(1, 0, rowset.NullRowKey)
			tr.reset()
			convey.So(tr.inputs, convey.ShouldBeEmpty)
			convey.So(tr.creators, convey.ShouldBeEmpty)
			convey.So(tr.created.IsEmpty(), convey.ShouldBeTrue)
		})
	})
}

func TestEventKindString(t *testing.T) {
	convey.Convey("event kinds print their names", t, func() {
		convey.So(AddedSlot.String(), convey.ShouldEqual, "ADDED_SLOT")
		convey.So(SlotInputRemoved.String(), convey.ShouldEqual, "SLOT_INPUT_REMOVED")
		convey.So(SlotEmptied.String(), convey.ShouldEqual, "SLOT_EMPTIED")
		convey.So(EventKind(42).String(), convey.ShouldEqual, "EventKind(42)")
	})
}

func TestInvertShift(t *testing.T) {
	convey.Convey("an inverted shift moves rows back", t, func() {
		sd := rowset.NewShiftData()
		convey.So(sd.Add(2, 4, 3), convey.ShouldBeNil)
		convey.So(sd.Add(10, 12, 5), convey.ShouldBeNil)
		rs := rowset.Of(0, 2, 3, 4, 10, 12)
		sd.Apply(rs)
		invertShift(sd).Apply(rs)
		convey.So(rs.ToSlice(), convey.ShouldResemble, []int64{0, 2, 3, 4, 10, 12})
	})
}
