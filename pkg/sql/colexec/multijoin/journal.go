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
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
)

type undoKind uint8

const (
	undoAlloc undoKind = iota
	undoInstall
	undoSetRowKey
	undoShift
)

// undo is one journal record, replayed backwards on abort.
type undo struct {
	kind  undoKind
	slot  int32
	table int
	// undoAlloc: the slot came from the free set
	fromFree bool
	// undoInstall: the stored hash of the installed key
	hash uint64
	// undoSetRowKey: the row key before the write
	rowKey int64
	shift  *rowset.ShiftData
}

// rollback undoes every journal record of the open tick, newest first.
// Rehashes are not undone, they preserve slots. Undone installs leave
// tombstones behind.
func (h *Hasher[K]) rollback() {
	for i := len(h.journal) - 1; i >= 0; i-- {
		u := &h.journal[i]
		switch u.kind {
		case undoAlloc:
			h.live--
			if u.fromFree {
				h.free.Add(uint32(u.slot))
			} else {
				h.highWater--
			}
		case undoInstall:
			if s := h.table.Delete(u.hash, h.table.Key(u.slot)); s != u.slot {
				panic(h.internal("undo install of slot %d found slot %d", u.slot, s))
			}
		case undoSetRowKey:
			h.writeRowKey(u.table, u.slot, u.rowKey)
		case undoShift:
			h.applyShift(u.table, invertShift(u.shift))
		}
	}
	clear(h.journal)
	h.journal = h.journal[:0]
}

// invertShift returns the shift moving every row of sd back.
func invertShift(sd *rowset.ShiftData) *rowset.ShiftData {
	inv := rowset.NewShiftData()
	for i := 0; i < sd.Size(); i++ {
		s := sd.Get(i)
		if err := inv.Add(s.Begin+s.Delta, s.End+s.Delta, -s.Delta); err != nil {
			panic(err)
		}
	}
	return inv
}
