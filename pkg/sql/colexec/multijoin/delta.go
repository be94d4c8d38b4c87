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
	"bytes"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring"

	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	v2 "github.com/matrixorigin/multijoin/pkg/util/metric/v2"
)

type EventKind uint8

const (
	AddedSlot EventKind = iota
	SlotInputAdded
	SlotInputRemoved
	SlotInputModified
	SlotEmptied
)

func (k EventKind) String() string {
	switch k {
	case AddedSlot:
		return "ADDED_SLOT"
	case SlotInputAdded:
		return "SLOT_INPUT_ADDED"
	case SlotInputRemoved:
		return "SLOT_INPUT_REMOVED"
	case SlotInputModified:
		return "SLOT_INPUT_MODIFIED"
	case SlotEmptied:
		return "SLOT_EMPTIED"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is one slot level change. Table is -1 for ADDED_SLOT and
// SLOT_EMPTIED. RowKey is the row of Table at commit, PrevRowKey the one
// at the start of the tick.
type Event struct {
	Kind       EventKind
	Slot       int32
	Table      int
	RowKey     int64
	PrevRowKey int64
	// Key holds the key values of an ADDED_SLOT event.
	Key []any
}

func (e Event) String() string {
	switch e.Kind {
	case AddedSlot:
		return fmt.Sprintf("%s(%d, %v)", e.Kind, e.Slot, e.Key)
	case SlotEmptied:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Slot)
	case SlotInputRemoved:
		return fmt.Sprintf("%s(%d, %d, %d)", e.Kind, e.Slot, e.Table, e.PrevRowKey)
	case SlotInputModified:
		return fmt.Sprintf("%s(%d, %d, %d->%d)", e.Kind, e.Slot, e.Table, e.PrevRowKey, e.RowKey)
	}
	return fmt.Sprintf("%s(%d, %d, %d)", e.Kind, e.Slot, e.Table, e.RowKey)
}

// Delta is the coalesced outcome of one committed tick. ADDED_SLOT events
// come first, SLOT_EMPTIED events last, input events in between ordered
// by slot and table.
type Delta struct {
	Tick   uint64
	Events []Event
}

func (d *Delta) IsEmpty() bool {
	return len(d.Events) == 0
}

// Count returns the number of events of kind.
func (d *Delta) Count(kind EventKind) int {
	n := 0
	for i := range d.Events {
		if d.Events[i].Kind == kind {
			n++
		}
	}
	return n
}

// Slots returns the slots having an event of kind.
func (d *Delta) Slots(kind EventKind) *rowset.RowSet {
	rs := rowset.New()
	for i := range d.Events {
		if d.Events[i].Kind == kind {
			rs.Insert(int64(d.Events[i].Slot))
		}
	}
	return rs
}

func (d *Delta) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tick %d:", d.Tick)
	for _, e := range d.Events {
		buf.WriteString(" ")
		buf.WriteString(e.String())
	}
	return buf.String()
}

type inputKey struct {
	slot  int32
	table int
}

// inputChange remembers the row key a (slot, table) pair had when the tick
// first touched it.
type inputChange struct {
	before   int64
	added    bool
	modified bool
}

// tracker accumulates what a tick did to each slot until commit.
type tracker struct {
	inputs  map[inputKey]*inputChange
	created *roaring.Bitmap
	// creators[s] is the table whose row created slot s
	creators map[int32]int
	// slots that lost an input row, candidates for being emptied
	shrunk *roaring.Bitmap
}

func newTracker() *tracker {
	return &tracker{
		inputs:   make(map[inputKey]*inputChange),
		created:  roaring.New(),
		creators: make(map[int32]int),
		shrunk:   roaring.New(),
	}
}

func (t *tracker) reset() {
	clear(t.inputs)
	clear(t.creators)
	t.created.Clear()
	t.shrunk.Clear()
}

func (t *tracker) create(slot int32, table int) {
	t.created.Add(uint32(slot))
	t.creators[slot] = table
}

func (t *tracker) touch(slot int32, table int, before int64) *inputChange {
	k := inputKey{slot: slot, table: table}
	c, ok := t.inputs[k]
	if !ok {
		c = &inputChange{before: before}
		t.inputs[k] = c
	}
	return c
}

// delta turns the tracked changes into events. rowKey reads the row key a
// (slot, table) pair holds now, keyOf the key values of a slot. The row
// that created a slot is carried by its ADDED_SLOT event alone.
func (t *tracker) delta(tick uint64, emptied *roaring.Bitmap,
	rowKey func(table int, slot int32) int64, keyOf func(slot int32) []any) *Delta {
	d := &Delta{Tick: tick}
	it := t.created.Iterator()
	for it.HasNext() {
		s := int32(it.Next())
		if emptied.Contains(uint32(s)) {
			continue
		}
		d.Events = append(d.Events, Event{
			Kind:       AddedSlot,
			Slot:       s,
			Table:      -1,
			RowKey:     rowset.NullRowKey,
			PrevRowKey: rowset.NullRowKey,
			Key:        keyOf(s),
		})
	}

	inputs := make([]Event, 0, len(t.inputs))
	for k, c := range t.inputs {
		if emptied.Contains(uint32(k.slot)) && t.created.Contains(uint32(k.slot)) {
			continue
		}
		after := rowKey(k.table, k.slot)
		e := Event{Slot: k.slot, Table: k.table, RowKey: after, PrevRowKey: c.before}
		switch {
		case c.before == rowset.NullRowKey && after == rowset.NullRowKey:
			continue
		case c.before == rowset.NullRowKey:
			if t.created.Contains(uint32(k.slot)) && t.creators[k.slot] == k.table {
				// announced by ADDED_SLOT
				continue
			}
			e.Kind = SlotInputAdded
		case after == rowset.NullRowKey:
			e.Kind = SlotInputRemoved
		case c.added || c.modified:
			e.Kind = SlotInputModified
		default:
			// only shifted
			continue
		}
		inputs = append(inputs, e)
	}
	slices.SortFunc(inputs, func(a, b Event) int {
		if a.Slot != b.Slot {
			return int(a.Slot - b.Slot)
		}
		return a.Table - b.Table
	})
	d.Events = append(d.Events, inputs...)

	it = emptied.Iterator()
	for it.HasNext() {
		s := int32(it.Next())
		if t.created.Contains(uint32(s)) {
			continue
		}
		d.Events = append(d.Events, Event{
			Kind:       SlotEmptied,
			Slot:       s,
			Table:      -1,
			RowKey:     rowset.NullRowKey,
			PrevRowKey: rowset.NullRowKey,
		})
	}
	return d
}

func recordDeltaMetrics(d *Delta) {
	for i := range d.Events {
		switch d.Events[i].Kind {
		case AddedSlot:
			v2.MultiJoinSlotAddedCounter.Inc()
		case SlotInputAdded:
			v2.MultiJoinSlotInputAddedCounter.Inc()
		case SlotInputRemoved:
			v2.MultiJoinSlotInputRemovedCounter.Inc()
		case SlotInputModified:
			v2.MultiJoinSlotInputModifiedCounter.Inc()
		case SlotEmptied:
			v2.MultiJoinSlotEmptiedCounter.Inc()
		}
	}
}
